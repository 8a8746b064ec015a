package resource

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Reloader re-reads a catalogue file on a cron schedule and hands every
// changed, valid catalogue to onChange. A file that fails to parse is logged
// and the previous catalogue stays in service.
type Reloader struct {
	path     string
	defaults Defaults
	onChange func(*Catalog)
	cron     *cron.Cron

	mu   sync.Mutex
	last *[sha256.Size]byte
}

// NewReloader creates a reloader for path. schedule accepts 5-field and
// 6-field cron expressions as well as descriptors such as "@every 30s".
// loaded is the catalogue already in service; a file that no longer matches
// it is published on the first check. A nil loaded publishes whatever the
// first check reads.
func NewReloader(path, schedule string, defaults Defaults, loaded *Catalog, onChange func(*Catalog)) (*Reloader, error) {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	r := &Reloader{
		path:     path,
		defaults: defaults,
		onChange: onChange,
		cron:     cron.New(cron.WithParser(parser)),
	}

	if loaded != nil {
		digest := loaded.Digest()
		r.last = &digest
	}

	if _, err := r.cron.AddFunc(schedule, func() {
		if _, err := r.Check(); err != nil {
			log.Error().Err(err).Str("path", r.path).Msg("Catalogue reload failed, keeping previous catalogue")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid reload schedule %q: %w", schedule, err)
	}

	return r, nil
}

// Start begins the schedule
func (r *Reloader) Start() {
	log.Info().Str("path", r.path).Msg("Starting catalogue reloader")
	r.cron.Start()
}

// Stop halts the schedule and waits for a running check to finish
func (r *Reloader) Stop() {
	<-r.cron.Stop().Done()
	log.Info().Msg("Catalogue reloader stopped")
}

// Check reads the file once and swaps the catalogue in when its content
// changed. It reports whether a new catalogue was published.
func (r *Reloader) Check() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		return false, fmt.Errorf("failed to read resource catalogue: %w", err)
	}
	digest := sha256.Sum256(data)
	if r.last != nil && digest == *r.last {
		return false, nil
	}

	catalog, err := Parse(data, r.defaults)
	if err != nil {
		return false, err
	}

	r.last = &digest
	r.onChange(catalog)
	log.Info().Strs("resources", catalog.Names()).Msg("Resource catalogue reloaded")
	return true, nil
}
