package storage

import (
	"math/rand"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/veltarosnet/veltaros/internal/peers"
)

// GormStore implements peers.DB over a *DB (gorm + SQLite).
type GormStore struct {
	db *DB
}

// NewGormStore wraps db as a peers.DB.
func NewGormStore(db *DB) *GormStore {
	return &GormStore{db: db}
}

func toRecord(p peers.Peer) PeerRecord {
	return PeerRecord{
		IP:          p.IP,
		Port:        p.Port,
		State:       int(p.State),
		OS:          p.OS,
		Version:     p.Version,
		ClockMillis: p.ClockMillis,
	}
}

func fromRecord(r PeerRecord, dapps []string) peers.Peer {
	return peers.Peer{
		IP:          r.IP,
		Port:        r.Port,
		State:       peers.State(r.State),
		OS:          r.OS,
		Version:     r.Version,
		ClockMillis: r.ClockMillis,
		Dapps:       dapps,
	}
}

// Upsert inserts or updates by (ip, port). If the caller provided an
// explicit state it is written; otherwise state defaults to DISCONNECTED
// on insert and is left untouched on update. os/version are written only
// when present on the input. A dapp association, if present, is attached
// idempotently.
func (s *GormStore) Upsert(p peers.Peer) error {
	err := s.db.Gorm.Transaction(func(tx *gorm.DB) error {
		var existing PeerRecord
		res := tx.Where("ip = ? AND port = ?", p.IP, p.Port).First(&existing)

		switch {
		case errors.Is(res.Error, gorm.ErrRecordNotFound):
			rec := toRecord(p)
			if !p.HasState {
				rec.State = int(peers.StateDisconnected)
			}
			if err := tx.Create(&rec).Error; err != nil {
				return errors.Wrap(err, "storage: insert peer")
			}
			existing = rec
		case res.Error != nil:
			return errors.Wrap(res.Error, "storage: lookup peer")
		default:
			updates := map[string]any{}
			if p.HasState {
				updates["state"] = int(p.State)
				updates["clock_millis"] = p.ClockMillis
			}
			if p.HasOS {
				updates["os"] = p.OS
			}
			if p.HasVersion {
				updates["version"] = p.Version
			}
			if len(updates) > 0 {
				if err := tx.Model(&existing).Updates(updates).Error; err != nil {
					return errors.Wrap(err, "storage: update peer")
				}
			}
		}

		if p.HasDappID {
			assoc := PeerDappRecord{PeerID: existing.ID, DappID: p.DappID}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&assoc).Error; err != nil {
				return errors.Wrap(err, "storage: attach dapp")
			}
		}

		return nil
	})
	return err
}

func (s *GormStore) Get(ip string, port int) (peers.Peer, bool, error) {
	var rec PeerRecord
	res := s.db.Gorm.Where("ip = ? AND port = ?", ip, port).First(&rec)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return peers.Peer{}, false, nil
	}
	if res.Error != nil {
		return peers.Peer{}, false, errors.Wrap(res.Error, "storage: get peer")
	}
	return fromRecord(rec, s.dappsFor(rec.ID)), true, nil
}

func (s *GormStore) dappsFor(peerID uint) []string {
	var assocs []PeerDappRecord
	if err := s.db.Gorm.Where("peer_id = ?", peerID).Find(&assocs).Error; err != nil {
		return nil
	}
	out := make([]string, 0, len(assocs))
	for _, a := range assocs {
		out = append(out, a.DappID)
	}
	return out
}

func (s *GormStore) Delete(ip string, port int) error {
	res := s.db.Gorm.Where("ip = ? AND port = ?", ip, port).Delete(&PeerRecord{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "storage: delete peer")
	}
	return nil
}

func (s *GormStore) List(limit int, dappID string) ([]peers.Peer, error) {
	q := s.db.Gorm.Model(&PeerRecord{}).Where("state != ?", int(peers.StateBanned))
	if dappID != "" {
		q = q.Joins("JOIN peers_dapp ON peers_dapp.peer_id = peers.id").
			Where("peers_dapp.dapp_id = ?", dappID)
	}

	var recs []PeerRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "storage: list peers")
	}

	rand.Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	out := make([]peers.Peer, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r, nil))
	}
	return out, nil
}

func (s *GormStore) Count() (int, error) {
	var n int64
	if err := s.db.Gorm.Model(&PeerRecord{}).Count(&n).Error; err != nil {
		return 0, errors.Wrap(err, "storage: count peers")
	}
	return int(n), nil
}

func (s *GormStore) SetState(ip string, port int, state peers.State, clockMillis int64) error {
	res := s.db.Gorm.Model(&PeerRecord{}).
		Where("ip = ? AND port = ?", ip, port).
		Updates(map[string]any{"state": int(state), "clock_millis": clockMillis})
	if res.Error != nil {
		return errors.Wrap(res.Error, "storage: set peer state")
	}
	return nil
}

func (s *GormStore) ClearExpiredBans(nowMillis int64) (int, error) {
	res := s.db.Gorm.Model(&PeerRecord{}).
		Where("state = ? AND clock_millis > 0 AND clock_millis <= ?", int(peers.StateBanned), nowMillis).
		Updates(map[string]any{"state": int(peers.StateDisconnected), "clock_millis": 0})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "storage: clear expired bans")
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) AddDapp(ip string, port int, dappID string) error {
	var rec PeerRecord
	res := s.db.Gorm.Where("ip = ? AND port = ?", ip, port).First(&rec)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil
	}
	if res.Error != nil {
		return errors.Wrap(res.Error, "storage: lookup peer for dapp")
	}
	assoc := PeerDappRecord{PeerID: rec.ID, DappID: dappID}
	if err := s.db.Gorm.Clauses(clause.OnConflict{DoNothing: true}).Create(&assoc).Error; err != nil {
		return errors.Wrap(err, "storage: attach dapp")
	}
	return nil
}

func (s *GormStore) GetByFilter(f peers.Filter) ([]peers.Peer, error) {
	f = f.Normalize()

	if f.Limit > 100 {
		return nil, peers.ErrLimitTooLarge{Limit: f.Limit}
	}

	orderBy, err := peers.SanitizeOrderBy(f.OrderBy)
	if err != nil {
		return nil, err
	}
	if orderBy == "" {
		orderBy = "ip asc"
	}

	q := s.db.Gorm.Model(&PeerRecord{})
	if f.IP != "" {
		q = q.Where("ip = ?", f.IP)
	}
	if f.Port != nil {
		q = q.Where("port = ?", *f.Port)
	}
	if f.State != nil {
		q = q.Where("state = ?", int(*f.State))
	}
	if f.OS != "" {
		q = q.Where("os = ?", f.OS)
	}
	if f.Version != "" {
		q = q.Where("version = ?", f.Version)
	}

	var recs []PeerRecord
	if err := q.Order(orderBy).Limit(f.Limit).Offset(f.Offset).Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "storage: filter peers")
	}

	out := make([]peers.Peer, 0, len(recs))
	for _, r := range recs {
		out = append(out, fromRecord(r, nil))
	}
	return out, nil
}
