package resolver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/marmos91/cascview/internal/logger"
	"github.com/marmos91/cascview/pkg/storage"
	"github.com/marmos91/cascview/pkg/table"
)

// Env is what a CandidateSource may use while collecting.
type Env struct {
	Backend storage.Backend

	// HasKey reports whether an encrypted table section can be read
	HasKey table.KeyCheck
}

// CandidateSource contributes candidate names before the application pass.
type CandidateSource interface {
	// Name identifies the source in logs
	Name() string

	// Collect adds candidates to m. A storage error aborts the pass; a
	// missing or undecodable table should be logged and skipped.
	Collect(ctx context.Context, env Env, m *CandidateMap) error
}

// Static is a fixed candidate list, mostly useful to seed known names.
type Static map[int32][]string

func (Static) Name() string { return "static" }

func (s Static) Collect(_ context.Context, _ Env, m *CandidateMap) error {
	for _, id := range slices.Sorted(maps.Keys(s)) {
		for _, n := range s[id] {
			m.Add(id, n)
		}
	}
	return nil
}

// ============================================================================
// Sound naming
// ============================================================================

const (
	soundFolder  = "sound"
	soundTypeMP3 = 28
)

func soundExt(soundType int) string {
	if soundType == soundTypeMP3 {
		return ".mp3"
	}
	return ".ogg"
}

// soundName builds "sound\<base>[_NN][_<fid>].<ext>". index is emitted,
// two digits wide, only when many is set.
func soundName(base string, index int, many bool, fid int32, withID bool, soundType int) string {
	var b strings.Builder
	b.WriteString(soundFolder)
	b.WriteString(`\`)
	b.WriteString(base)
	if many {
		fmt.Fprintf(&b, "_%02d", index)
	}
	if withID {
		fmt.Fprintf(&b, "_%d", fid)
	}
	b.WriteString(soundExt(soundType))
	return b.String()
}

var kitNameReplacer = strings.NewReplacer(":", "_", `"`, "")

// openTable opens k, decodes it and closes the stream before returning.
func openTable(ctx context.Context, env Env, k storage.Key, schema table.Schema) (*table.Table, error) {
	rc, err := storage.Open(ctx, env.Backend, k)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var opts []table.Option
	if env.HasKey != nil {
		opts = append(opts, table.WithKeyCheck(env.HasKey))
	}
	tbl, err := table.Open(rc, schema, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return tbl, nil
}

// isTableError reports errors that make one table unusable without
// affecting the rest of the pass.
func isTableError(err error) bool {
	return errors.Is(err, table.ErrInvalidFormat) || errors.Is(err, table.ErrUnsupportedStorage)
}

// ============================================================================
// SoundEntries (WDB2)
// ============================================================================

const (
	// DefaultSoundEntriesPath locates the legacy sound table.
	DefaultSoundEntriesPath = `DBFilesClient\SoundEntries.db2`

	seColType     = 1
	seColName     = 2
	seColFirstFID = 3
	seNumFIDs     = 20
)

var soundEntriesSchema = func() table.Schema {
	s := table.Schema{table.FieldInt, table.FieldInt, table.FieldString}
	for i := 0; i < seNumFIDs; i++ {
		s = append(s, table.FieldInt)
	}
	return s
}()

// SoundEntries reads the WDB2 sound table: per row a name, a type and up
// to 20 file ids. Every nonzero id gets "sound\<name>[_NN].<ext>", where NN
// is the id's column position and only appears when the row lists more
// than one id.
type SoundEntries struct {
	// Path of the table; DefaultSoundEntriesPath when empty
	Path string
}

func (SoundEntries) Name() string { return "SoundEntries" }

func (s SoundEntries) Collect(ctx context.Context, env Env, m *CandidateMap) error {
	path := s.Path
	if path == "" {
		path = DefaultSoundEntriesPath
	}
	key := storage.ByPath(path)
	if !storage.Exists(ctx, env.Backend, key) {
		logger.Info("SoundEntries: %s not in storage, skipping", path)
		return nil
	}

	tbl, err := openTable(ctx, env, key, soundEntriesSchema)
	if isTableError(err) {
		logger.Warn("SoundEntries: %v, skipping", err)
		return nil
	}
	if err != nil {
		return err
	}

	added, skipped := 0, 0
	for _, row := range tbl.Rows() {
		n, err := soundEntriesRow(row, m)
		if err != nil {
			logger.Debug("SoundEntries: row %d skipped: %v", row.ID, err)
			skipped++
			continue
		}
		added += n
	}

	logger.Info("SoundEntries: %d candidates from %d rows (%d rows skipped)", added, tbl.Len(), skipped)
	return nil
}

func soundEntriesRow(row *table.Row, m *CandidateMap) (int, error) {
	name, err := row.String(seColName)
	if err != nil {
		return 0, err
	}
	typ, err := row.Int(seColType)
	if err != nil {
		return 0, err
	}

	last := min(seColFirstFID+seNumFIDs, row.NumFields())
	fids := make([]int32, 0, seNumFIDs)
	cols := make([]int, 0, seNumFIDs)
	for col := seColFirstFID; col < last; col++ {
		fid, err := row.Int(col)
		if err != nil {
			return 0, err
		}
		if fid == 0 {
			continue
		}
		fids = append(fids, fid)
		cols = append(cols, col)
	}

	many := len(fids) > 1
	added := 0
	for i, fid := range fids {
		index := cols[i] - seColFirstFID + 1
		if m.Add(fid, soundName(name, index, many, fid, false, int(typ))) {
			added++
		}
	}
	return added, nil
}

// ============================================================================
// SoundKit (WDC3)
// ============================================================================

// Default file ids of the sound kit tables.
const (
	DefaultSoundKitID      int32 = 1237434
	DefaultSoundKitEntryID int32 = 1237435
	DefaultSoundKitNameID  int32 = 1665033

	skColType  = 6
	skeColKit  = 0
	skeColFID  = 1
	sknColName = 0
)

var (
	soundKitSchema      = table.Schema{table.FieldInt, table.FieldInt, table.FieldInt, table.FieldInt, table.FieldInt, table.FieldInt, table.FieldByte}
	soundKitEntrySchema = table.Schema{table.FieldInt, table.FieldInt}
	soundKitNameSchema  = table.Schema{table.FieldString}
)

// SoundKit reads the three linked WDC3 kit tables. For each kit with a
// name and at least one entry, every entry's file id gets
// "sound\<name>[_NN][_<fid>].<ext>", NN counting the kit's entries from 01
// and only appearing for kits with more than one entry.
//
// The tables are read one after the other and each stream is closed before
// the next is opened: entries first, then names, then kits.
type SoundKit struct {
	KitID      int32
	EntryID    int32
	NameID     int32
	WithFileID bool
}

func (SoundKit) Name() string { return "SoundKit" }

func (s SoundKit) ids() (kit, entry, name int32) {
	kit, entry, name = s.KitID, s.EntryID, s.NameID
	if kit == 0 {
		kit = DefaultSoundKitID
	}
	if entry == 0 {
		entry = DefaultSoundKitEntryID
	}
	if name == 0 {
		name = DefaultSoundKitNameID
	}
	return kit, entry, name
}

func (s SoundKit) Collect(ctx context.Context, env Env, m *CandidateMap) error {
	kitID, entryID, nameID := s.ids()
	for _, id := range []int32{kitID, entryID, nameID} {
		if !storage.Exists(ctx, env.Backend, storage.ByID(id)) {
			logger.Info("SoundKit: table %d not in storage, skipping", id)
			return nil
		}
	}

	// Step 1: kit -> file ids, in table order
	entries, err := s.loadEntries(ctx, env, entryID)
	if err != nil || entries == nil {
		return err
	}

	// Step 2: kit -> display name
	names, err := s.loadNames(ctx, env, nameID)
	if err != nil || names == nil {
		return err
	}

	// Step 3: walk the kits
	tbl, err := openTable(ctx, env, storage.ByID(kitID), soundKitSchema)
	if isTableError(err) {
		logger.Warn("SoundKit: %v, skipping", err)
		return nil
	}
	if err != nil {
		return err
	}

	added := 0
	for kit, row := range tbl.Rows() {
		name, ok := names[kit]
		if !ok {
			continue
		}
		fids, ok := entries[kit]
		if !ok {
			continue
		}
		typ, err := row.Byte(skColType)
		if err != nil {
			logger.Debug("SoundKit: kit %d skipped: %v", kit, err)
			continue
		}

		many := len(fids) > 1
		for i, fid := range fids {
			if m.Add(fid, soundName(name, i+1, many, fid, s.WithFileID, int(typ))) {
				added++
			}
		}
	}

	logger.Info("SoundKit: %d candidates from %d kits", added, tbl.Len())
	return nil
}

func (s SoundKit) loadEntries(ctx context.Context, env Env, id int32) (map[int32][]int32, error) {
	tbl, err := openTable(ctx, env, storage.ByID(id), soundKitEntrySchema)
	if isTableError(err) {
		logger.Warn("SoundKitEntry: %v, skipping", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make(map[int32][]int32)
	for _, row := range tbl.Rows() {
		kit, err := row.Int(skeColKit)
		if err != nil {
			logger.Debug("SoundKitEntry: row %d skipped: %v", row.ID, err)
			continue
		}
		fid, err := row.Int(skeColFID)
		if err != nil {
			logger.Debug("SoundKitEntry: row %d skipped: %v", row.ID, err)
			continue
		}
		entries[kit] = append(entries[kit], fid)
	}
	return entries, nil
}

func (s SoundKit) loadNames(ctx context.Context, env Env, id int32) (map[int32]string, error) {
	tbl, err := openTable(ctx, env, storage.ByID(id), soundKitNameSchema)
	if isTableError(err) {
		logger.Warn("SoundKitName: %v, skipping", err)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make(map[int32]string, tbl.Len())
	for kit, row := range tbl.Rows() {
		name, err := row.String(sknColName)
		if err != nil {
			logger.Debug("SoundKitName: row %d skipped: %v", kit, err)
			continue
		}
		if _, dup := names[kit]; !dup {
			names[kit] = kitNameReplacer.Replace(name)
		}
	}
	return names, nil
}
