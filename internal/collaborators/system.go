package collaborators

import (
	"github.com/veltarosnet/veltaros/pkg/version"
)

// System exposes chain height and build version to the peer API
// (/peer/height) and management API. It implements transport.SystemInfo.
type System struct {
	blocks *Blocks
}

// NewSystem builds a System collaborator backed by blocks for height.
func NewSystem(blocks *Blocks) *System {
	return &System{blocks: blocks}
}

// Height returns the current chain height.
func (s *System) Height() (int, error) {
	return s.blocks.Height()
}

// Version returns the running build's version and commit.
func (s *System) Version() (string, string) {
	info := version.Get()
	return info.Version, info.Commit
}
