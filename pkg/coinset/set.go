// Package coinset owns the three persisted collections behind the coin
// table (active coins, selected ids, archive) and keeps them consistent:
// an id is never both selected and archived.
package coinset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"coinboard/pkg/events"
	"coinboard/pkg/market"
	"coinboard/pkg/storage"
)

var (
	ErrNotSelected = errors.New("coinset: coin is not selected")
	ErrNotArchived = errors.New("coinset: coin is not archived")

	ErrUnknownDirection = errors.New("coinset: unknown direction")
)

// Snapshot is a copy of the set state for readers.
type Snapshot struct {
	Coins        []market.Coin  `json:"coins"`
	Selected     []string       `json:"selected"`
	Archive      []ArchiveEntry `json:"archive"`
	RowSelection []string       `json:"rowSelection"`
	LastUpdated  time.Time      `json:"lastUpdated"`
	TableError   string         `json:"tableError,omitempty"`
}

// Set guards the collections with a mutex; every mutation writes through
// to the store before the lock is released.
type Set struct {
	store    storage.Store
	notifier events.Notifier

	mu          sync.RWMutex
	coins       []market.Coin
	selected    []string
	archive     []ArchiveEntry
	rows        map[string]struct{}
	lastUpdated time.Time
	tableErr    string
}

func New(store storage.Store, notifier events.Notifier) *Set {
	if notifier == nil {
		notifier = events.Nop{}
	}
	return &Set{
		store:    store,
		notifier: notifier,
		coins:    []market.Coin{},
		selected: []string{},
		archive:  []ArchiveEntry{},
		rows:     make(map[string]struct{}),
	}
}

// Load replaces in-memory state with what the store holds. Unreadable
// values are logged and treated as empty.
func (s *Set) Load(ctx context.Context) error {
	var (
		coins    []market.Coin
		selected []string
		archive  []ArchiveEntry
	)
	if err := s.loadKey(ctx, storage.KeyCoins, &coins); err != nil {
		return err
	}
	if err := s.loadKey(ctx, storage.KeySelectedCoins, &selected); err != nil {
		return err
	}
	if err := s.loadKey(ctx, storage.KeyArchivedCoins, &archive); err != nil {
		return err
	}
	raw, ok, err := s.store.Get(ctx, storage.KeyLastUpdated)
	if err != nil {
		return fmt.Errorf("coinset: load %s: %w", storage.KeyLastUpdated, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.coins = slices.DeleteFunc(coins, func(c market.Coin) bool { return c.ID == "" })
	s.selected = dedupe(selected)
	s.archive = dedupeEntries(archive)
	s.rows = make(map[string]struct{})
	s.lastUpdated = time.Time{}
	if ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			s.lastUpdated = time.UnixMilli(ms)
		}
	}
	return nil
}

func (s *Set) loadKey(ctx context.Context, key string, out any) error {
	_, err := storage.GetJSON(ctx, s.store, key, out)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrCorrupt):
		logx.WithContext(ctx).Errorf("coinset: discard unreadable key=%s err=%v", key, err)
		return nil
	default:
		return fmt.Errorf("coinset: load %s: %w", key, err)
	}
}

// Reconcile strips archive entries whose id is also selected. Selected wins.
func (s *Set) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	selected := toSet(s.selected)
	before := len(s.archive)
	s.archive = slices.DeleteFunc(s.archive, func(e ArchiveEntry) bool {
		_, ok := selected[e.ID]
		return ok
	})
	removed := before - len(s.archive)
	var err error
	if removed > 0 {
		err = s.persistArchiveLocked(ctx)
	}
	s.mu.Unlock()

	if removed > 0 {
		logx.WithContext(ctx).Infof("coinset: reconcile removed=%d archive entries", removed)
		s.notify(events.KindArchiveUpdated)
	}
	return removed, err
}

func (s *Set) dropArchivedLocked(ctx context.Context, id string) (bool, error) {
	idx := s.archiveIndexLocked(id)
	if idx < 0 {
		return false, nil
	}
	s.archive = slices.Delete(s.archive, idx, idx+1)
	return true, s.persistArchiveLocked(ctx)
}

func (s *Set) dropSelectedLocked(ctx context.Context, id string) (bool, error) {
	idx := slices.Index(s.selected, id)
	if idx < 0 {
		return false, nil
	}
	s.selected = slices.Delete(s.selected, idx, idx+1)
	return true, s.persistSelectedLocked(ctx)
}

// AppendSelected appends id unless already present.
func (s *Set) AppendSelected(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	added, err := s.appendSelectedLocked(ctx, id)
	s.mu.Unlock()
	if added {
		s.notify(events.KindCoinsUpdated)
	}
	return added, err
}

func (s *Set) appendSelectedLocked(ctx context.Context, id string) (bool, error) {
	if id == "" || slices.Contains(s.selected, id) {
		return false, nil
	}
	s.selected = append(s.selected, id)
	return true, s.persistSelectedLocked(ctx)
}

// AppendArchive appends entry unless an entry with the same id exists.
func (s *Set) AppendArchive(ctx context.Context, entry ArchiveEntry) (bool, error) {
	s.mu.Lock()
	added, err := s.appendArchiveLocked(ctx, entry, -1)
	s.mu.Unlock()
	if added {
		s.notify(events.KindArchiveUpdated)
	}
	return added, err
}

// appendArchiveLocked inserts at pos, or appends when pos is out of range.
func (s *Set) appendArchiveLocked(ctx context.Context, entry ArchiveEntry, pos int) (bool, error) {
	if entry.ID == "" || s.archiveIndexLocked(entry.ID) >= 0 {
		return false, nil
	}
	if pos < 0 || pos > len(s.archive) {
		s.archive = append(s.archive, entry)
	} else {
		s.archive = slices.Insert(s.archive, pos, entry)
	}
	return true, s.persistArchiveLocked(ctx)
}

// Select is the add transition: id leaves the archive (persisted) and
// joins the end of the selected list. added is false when id was already
// selected.
func (s *Set) Select(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" || IsSynthetic(id) {
		return false, fmt.Errorf("coinset: cannot select %q", id)
	}
	s.mu.Lock()
	unarchived, err := s.dropArchivedLocked(ctx, id)
	added := false
	if err == nil {
		added, err = s.appendSelectedLocked(ctx, id)
	}
	s.mu.Unlock()
	if unarchived {
		s.notify(events.KindArchiveUpdated)
	}
	if added {
		s.notify(events.KindCoinsUpdated)
	}
	return added, err
}

// ArchiveCoin is the archive transition: id leaves the selected list
// (persisted) and the coin table, and an entry named from the current coin
// record joins the archive.
func (s *Set) ArchiveCoin(ctx context.Context, id string) (ArchiveEntry, error) {
	s.mu.Lock()
	entry, err := s.archiveCoinLocked(ctx, id)
	s.mu.Unlock()
	if errors.Is(err, ErrNotSelected) {
		return entry, err
	}
	s.notify(events.KindCoinsUpdated)
	s.notify(events.KindArchiveUpdated)
	return entry, err
}

func (s *Set) archiveCoinLocked(ctx context.Context, id string) (ArchiveEntry, error) {
	if !slices.Contains(s.selected, id) {
		return ArchiveEntry{}, fmt.Errorf("%w: %s", ErrNotSelected, id)
	}
	entry := ArchiveEntry{ID: id, Symbol: strings.ToUpper(id), Name: id}
	if idx := s.coinIndexLocked(id); idx >= 0 {
		c := s.coins[idx]
		entry.Symbol = strings.ToUpper(c.Symbol)
		entry.Name = c.Name
		s.coins = slices.Delete(s.coins, idx, idx+1)
		delete(s.rows, id)
		if err := s.persistCoinsLocked(ctx); err != nil {
			return entry, err
		}
	}
	if _, err := s.dropSelectedLocked(ctx, id); err != nil {
		return entry, err
	}
	_, err := s.appendArchiveLocked(ctx, entry, -1)
	return entry, err
}

// ArchiveFailed files a permanently unresolved ticker. An entry whose real
// id is selected is not archived; an existing id is never duplicated.
func (s *Set) ArchiveFailed(ctx context.Context, entry ArchiveEntry) (bool, error) {
	s.mu.Lock()
	if slices.Contains(s.selected, entry.ID) {
		s.mu.Unlock()
		return false, nil
	}
	added, err := s.appendArchiveLocked(ctx, entry, -1)
	s.mu.Unlock()
	if added {
		s.notify(events.KindArchiveUpdated)
	}
	return added, err
}

// Remove drops a coin from the table without archiving it.
func (s *Set) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	err := s.removeLocked(ctx, id)
	s.mu.Unlock()
	if err == nil {
		s.notify(events.KindCoinsUpdated)
	}
	return err
}

func (s *Set) removeLocked(ctx context.Context, id string) error {
	if !slices.Contains(s.selected, id) {
		return fmt.Errorf("%w: %s", ErrNotSelected, id)
	}
	if idx := s.coinIndexLocked(id); idx >= 0 {
		s.coins = slices.Delete(s.coins, idx, idx+1)
		delete(s.rows, id)
		if err := s.persistCoinsLocked(ctx); err != nil {
			return err
		}
	}
	_, err := s.dropSelectedLocked(ctx, id)
	return err
}

// Move reorders a selected id. Coins follow the selected order.
func (s *Set) Move(ctx context.Context, id string, dir Direction) error {
	s.mu.Lock()
	idx := slices.Index(s.selected, id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotSelected, id)
	}
	target := idx
	switch dir {
	case MoveStart:
		target = 0
	case MoveUp:
		target = max(idx-1, 0)
	case MoveDown:
		target = min(idx+1, len(s.selected)-1)
	case MoveEnd:
		target = len(s.selected) - 1
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w %q", ErrUnknownDirection, dir)
	}
	if target == idx {
		s.mu.Unlock()
		return nil
	}
	s.selected = slices.Delete(s.selected, idx, idx+1)
	s.selected = slices.Insert(s.selected, target, id)
	err := s.persistSelectedLocked(ctx)
	if err == nil {
		s.sortCoinsLocked()
		err = s.persistCoinsLocked(ctx)
	}
	s.mu.Unlock()
	s.notify(events.KindCoinsUpdated)
	return err
}

// SetRowSelection replaces the ticked rows; ids not in the table are ignored.
func (s *Set) SetRowSelection(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if s.coinIndexLocked(id) >= 0 || slices.Contains(s.selected, id) {
			s.rows[id] = struct{}{}
		}
	}
	return s.rowsLocked()
}

// RowSelection returns ticked rows in table order.
func (s *Set) RowSelection() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rowsLocked()
}

func (s *Set) rowsLocked() []string {
	out := make([]string, 0, len(s.rows))
	for _, id := range s.selected {
		if _, ok := s.rows[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// DeleteSelectedRows removes every ticked row without archiving.
func (s *Set) DeleteSelectedRows(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	ids := s.rowsLocked()
	var err error
	for _, id := range ids {
		if err = s.removeLocked(ctx, id); err != nil {
			break
		}
	}
	s.rows = make(map[string]struct{})
	s.mu.Unlock()
	if len(ids) > 0 {
		s.notify(events.KindCoinsUpdated)
	}
	return ids, err
}

// ArchiveSelectedRows archives every ticked row.
func (s *Set) ArchiveSelectedRows(ctx context.Context) ([]ArchiveEntry, error) {
	s.mu.Lock()
	ids := s.rowsLocked()
	entries := make([]ArchiveEntry, 0, len(ids))
	var err error
	for _, id := range ids {
		var entry ArchiveEntry
		if entry, err = s.archiveCoinLocked(ctx, id); err != nil {
			break
		}
		entries = append(entries, entry)
	}
	s.rows = make(map[string]struct{})
	s.mu.Unlock()
	if len(ids) > 0 {
		s.notify(events.KindCoinsUpdated)
		s.notify(events.KindArchiveUpdated)
	}
	return entries, err
}

// Purge deletes an archive entry for good.
func (s *Set) Purge(ctx context.Context, id string) error {
	s.mu.Lock()
	changed, err := s.dropArchivedLocked(ctx, id)
	s.mu.Unlock()
	if !changed {
		return fmt.Errorf("%w: %s", ErrNotArchived, id)
	}
	s.notify(events.KindArchiveUpdated)
	return err
}

// ArchivedEntry returns the archive entry for id and its position.
func (s *Set) ArchivedEntry(id string) (ArchiveEntry, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.archiveIndexLocked(id)
	if idx < 0 {
		return ArchiveEntry{}, -1, false
	}
	return s.archive[idx], idx, true
}

// Unarchive moves entry back to the table as id. id differs from entry.ID
// when a failed- placeholder was re-resolved.
func (s *Set) Unarchive(ctx context.Context, entry ArchiveEntry, id string) error {
	s.mu.Lock()
	idx := s.archiveIndexLocked(entry.ID)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotArchived, entry.ID)
	}
	s.archive = slices.Delete(s.archive, idx, idx+1)
	err := s.persistArchiveLocked(ctx)
	if err == nil {
		_, err = s.dropArchivedLocked(ctx, id)
	}
	if err == nil {
		_, err = s.appendSelectedLocked(ctx, id)
	}
	s.mu.Unlock()
	s.notify(events.KindArchiveUpdated)
	s.notify(events.KindCoinsUpdated)
	return err
}

// RollbackRestore undoes Unarchive: id leaves the table and entry goes back
// to the archive at pos.
func (s *Set) RollbackRestore(ctx context.Context, entry ArchiveEntry, pos int, id string) error {
	s.mu.Lock()
	var err error
	if slices.Contains(s.selected, id) {
		err = s.removeLocked(ctx, id)
	}
	if err == nil {
		_, err = s.appendArchiveLocked(ctx, entry, pos)
	}
	s.mu.Unlock()
	s.notify(events.KindCoinsUpdated)
	s.notify(events.KindArchiveUpdated)
	return err
}

// ReplaceCoins installs a freshly fetched coin list: ordered by the
// selected list, row selection cleared, table error cleared. Coins, the
// last-updated stamp and the selected list are persisted.
func (s *Set) ReplaceCoins(ctx context.Context, coins []market.Coin, at time.Time) ([]market.Coin, error) {
	s.mu.Lock()
	s.coins = slices.Clone(coins)
	s.sortCoinsLocked()
	s.rows = make(map[string]struct{})
	s.lastUpdated = at
	s.tableErr = ""
	err := s.persistCoinsLocked(ctx)
	if err == nil {
		err = s.store.Set(ctx, storage.KeyLastUpdated, strconv.FormatInt(at.UnixMilli(), 10))
	}
	if err == nil {
		err = s.persistSelectedLocked(ctx)
	}
	out := slices.Clone(s.coins)
	s.mu.Unlock()
	s.notify(events.KindCoinsUpdated)
	return out, err
}

// SetTableError records the table-level error string ("" clears it).
func (s *Set) SetTableError(msg string) {
	s.mu.Lock()
	s.tableErr = msg
	s.mu.Unlock()
	s.notifier.Notify(events.Event{Kind: events.KindTableError, Error: msg})
}

// sortCoinsLocked orders coins by the selected list; unselected coins go.
func (s *Set) sortCoinsLocked() {
	pos := make(map[string]int, len(s.selected))
	for i, id := range s.selected {
		pos[id] = i
	}
	s.coins = slices.DeleteFunc(s.coins, func(c market.Coin) bool {
		_, ok := pos[c.ID]
		return !ok
	})
	slices.SortStableFunc(s.coins, func(a, b market.Coin) int {
		return pos[a.ID] - pos[b.ID]
	})
}

func (s *Set) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.selected)
}

// FetchableIDs is the selected list without synthetic ids.
func (s *Set) FetchableIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.selected))
	for _, id := range s.selected {
		if !IsSynthetic(id) {
			out = append(out, id)
		}
	}
	return out
}

func (s *Set) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.selected, id)
}

// HasSymbol reports whether the active coin list shows ticker.
func (s *Set) HasSymbol(ticker string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.coins {
		if strings.EqualFold(c.Symbol, ticker) {
			return true
		}
	}
	return false
}

func (s *Set) Coins() []market.Coin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.coins)
}

func (s *Set) Archived() []ArchiveEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.archive)
}

func (s *Set) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Coins:        slices.Clone(s.coins),
		Selected:     slices.Clone(s.selected),
		Archive:      slices.Clone(s.archive),
		RowSelection: s.rowsLocked(),
		LastUpdated:  s.lastUpdated,
		TableError:   s.tableErr,
	}
}

func (s *Set) archiveIndexLocked(id string) int {
	return slices.IndexFunc(s.archive, func(e ArchiveEntry) bool { return e.ID == id })
}

func (s *Set) coinIndexLocked(id string) int {
	return slices.IndexFunc(s.coins, func(c market.Coin) bool { return c.ID == id })
}

func (s *Set) persistSelectedLocked(ctx context.Context) error {
	return s.persist(ctx, storage.KeySelectedCoins, s.selected)
}

func (s *Set) persistArchiveLocked(ctx context.Context) error {
	return s.persist(ctx, storage.KeyArchivedCoins, s.archive)
}

func (s *Set) persistCoinsLocked(ctx context.Context) error {
	return s.persist(ctx, storage.KeyCoins, s.coins)
}

func (s *Set) persist(ctx context.Context, key string, v any) error {
	if err := storage.SetJSON(ctx, s.store, key, v); err != nil {
		logx.WithContext(ctx).Errorf("coinset: persist key=%s err=%v", key, err)
		return fmt.Errorf("coinset: persist %s: %w", key, err)
	}
	return nil
}

func (s *Set) notify(kind events.Kind) {
	s.notifier.Notify(events.Event{Kind: kind})
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupeEntries(entries []ArchiveEntry) []ArchiveEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]ArchiveEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
