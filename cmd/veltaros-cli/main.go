package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	vcrypto "github.com/veltarosnet/veltaros/internal/crypto"
	"github.com/veltarosnet/veltaros/internal/wallet"
	"github.com/veltarosnet/veltaros/pkg/api"
	"github.com/veltarosnet/veltaros/pkg/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "version":
		runVersion()
	case "wallet":
		runWallet(os.Args[2:])
	case "sign":
		runSign(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	case "peers":
		runPeers(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Print(`Veltaros CLI

Usage:
  veltaros-cli version
  veltaros-cli wallet new --out <path>
  veltaros-cli wallet address --key <path>
  veltaros-cli sign --key <path> --msg <text>
  veltaros-cli verify --pub <hex> --msg <text> --sig <hex>
  veltaros-cli peers list --node <url>
  veltaros-cli peers get --node <url> --ip <ip> --port <port>
  veltaros-cli peers height --node <url>

Notes:
  - wallet keys are stored as hex-encoded ed25519 private keys (64 bytes).
  - addresses are deterministic: hex(pubHash20||checksum4).
  - peers subcommands talk to a running node's management API.
`)
}

func runPeers(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("peers list", flag.ExitOnError)
		node := fs.String("node", "http://127.0.0.1:8080", "Node management API base URL")
		_ = fs.Parse(args[1:])

		cl, err := api.New(*node)
		if err != nil {
			fatal(err)
		}
		out, err := cl.Peers(context.Background(), nil)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%d peer(s)\n", len(out.Peers))
		for _, p := range out.Peers {
			fmt.Printf("  %s:%d state=%d os=%q version=%q dapps=%v\n", p.IP, p.Port, p.State, p.OS, p.Version, p.Dapps)
		}

	case "get":
		fs := flag.NewFlagSet("peers get", flag.ExitOnError)
		node := fs.String("node", "http://127.0.0.1:8080", "Node management API base URL")
		ip := fs.String("ip", "", "Peer IP")
		port := fs.Int("port", 0, "Peer port")
		_ = fs.Parse(args[1:])

		if strings.TrimSpace(*ip) == "" || *port <= 0 {
			fatal(fmt.Errorf("--ip and --port are required"))
		}

		cl, err := api.New(*node)
		if err != nil {
			fatal(err)
		}
		out, err := cl.PeerGet(context.Background(), *ip, *port)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s:%d state=%d os=%q version=%q dapps=%v\n",
			out.Peer.IP, out.Peer.Port, out.Peer.State, out.Peer.OS, out.Peer.Version, out.Peer.Dapps)

	case "height":
		fs := flag.NewFlagSet("peers height", flag.ExitOnError)
		node := fs.String("node", "http://127.0.0.1:8080", "Node management API base URL")
		_ = fs.Parse(args[1:])

		cl, err := api.New(*node)
		if err != nil {
			fatal(err)
		}
		height, err := cl.Height(context.Background())
		if err != nil {
			fatal(err)
		}
		fmt.Println(strconv.Itoa(height))

	default:
		usage()
		os.Exit(2)
	}
}

func runVersion() {
	v := version.Get()
	fmt.Printf("Veltaros CLI\nVersion: %s\nCommit:  %s\nGo:      %s\nTarget:  %s\n",
		v.Version, v.Commit, v.GoVersion, v.Platform)
}

func runWallet(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "new":
		fs := flag.NewFlagSet("wallet new", flag.ExitOnError)
		out := fs.String("out", filepath.Join("data", "wallets", "default.key"), "Output path for private key file")
		_ = fs.Parse(args[1:])

		kp, err := wallet.Generate()
		if err != nil {
			fatal(err)
		}
		if err := wallet.SavePrivateKeyHex(*out, kp.PrivateKey); err != nil {
			fatal(err)
		}
		addr, err := wallet.AddressFromPublicKey(kp.PublicKey)
		if err != nil {
			fatal(err)
		}
		fmt.Println("Saved private key:", *out)
		fmt.Println("Address:", addr)

	case "address":
		fs := flag.NewFlagSet("wallet address", flag.ExitOnError)
		keyPath := fs.String("key", filepath.Join("data", "wallets", "default.key"), "Path to private key file")
		_ = fs.Parse(args[1:])

		priv, err := wallet.LoadPrivateKeyHex(*keyPath)
		if err != nil {
			fatal(err)
		}
		pubAny := priv.Public()
		pub, ok := pubAny.(vcrypto.PublicKey)
		if ok {
			addr, err := wallet.AddressFromPublicKey(pub)
			if err != nil {
				fatal(err)
			}
			fmt.Println(addr)
			return
		}

		// ed25519.PrivateKey.Public() returns an ed25519.PublicKey, a named []byte type
		addr, err := wallet.AddressFromPublicKey(pubAny.(vcrypto.PublicKey))
		if err != nil {
			fatal(err)
		}
		fmt.Println(addr)

	default:
		usage()
		os.Exit(2)
	}
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	keyPath := fs.String("key", filepath.Join("data", "wallets", "default.key"), "Path to private key file")
	msg := fs.String("msg", "", "Message to sign")
	_ = fs.Parse(args)

	if strings.TrimSpace(*msg) == "" {
		fatal(fmt.Errorf("--msg is required"))
	}

	priv, err := wallet.LoadPrivateKeyHex(*keyPath)
	if err != nil {
		fatal(err)
	}

	sig, err := vcrypto.SignEd25519(priv, []byte(*msg))
	if err != nil {
		fatal(err)
	}

	fmt.Println(hex.EncodeToString(sig))
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	pubHex := fs.String("pub", "", "Public key hex (32 bytes)")
	msg := fs.String("msg", "", "Message to verify")
	sigHex := fs.String("sig", "", "Signature hex (64 bytes)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*pubHex) == "" || strings.TrimSpace(*sigHex) == "" || strings.TrimSpace(*msg) == "" {
		fatal(fmt.Errorf("--pub, --sig, and --msg are required"))
	}

	pub, err := vcrypto.DecodeHex(strings.TrimSpace(*pubHex))
	if err != nil {
		fatal(err)
	}
	sig, err := vcrypto.DecodeHex(strings.TrimSpace(*sigHex))
	if err != nil {
		fatal(err)
	}

	ok := vcrypto.VerifyEd25519(pub, []byte(*msg), sig)
	if ok {
		fmt.Println("OK")
		return
	}
	fmt.Println("INVALID")
	os.Exit(1)
}

func fatal(err error) {
	_, _ = os.Stderr.WriteString("veltaros-cli error: " + err.Error() + "\n")
	os.Exit(1)
}
