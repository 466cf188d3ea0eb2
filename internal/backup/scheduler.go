package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Source interface {
	Backup(ctx context.Context) (Document, error)
}

// Scheduler periodically writes backup documents into a directory and keeps
// only the newest files.
type Scheduler struct {
	cron    *cron.Cron
	source  Source
	dir     string
	retain  int
	now     func() time.Time
	timeout time.Duration
	entryID cron.EntryID
}

func NewScheduler(source Source, dir string, retain int, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if retain < 1 {
		retain = 1
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		source:  source,
		dir:     dir,
		retain:  retain,
		now:     func() time.Time { return time.Now().In(loc) },
		timeout: time.Minute,
	}
}

func (s *Scheduler) Start(spec string) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	id, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		path, err := s.RunOnce(ctx)
		if err != nil {
			log.Printf("[backup] WARN: scheduled backup failed: %v", err)
			return
		}
		log.Printf("[backup] wrote %s", path)
	})
	if err != nil {
		return fmt.Errorf("schedule backup %q: %w", spec, err)
	}
	s.entryID = id
	s.cron.Start()
	log.Printf("[backup] scheduler started spec=%q dir=%s retain=%d", spec, s.dir, s.retain)
	return nil
}

// Stop halts the schedule and waits for a running backup to finish.
func (s *Scheduler) Stop() error {
	<-s.cron.Stop().Done()
	log.Println("[backup] scheduler stopped")
	return nil
}

// RunOnce writes one backup file and prunes old ones. The file is written to
// a temp name first so a crash never leaves a truncated backup behind.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	doc, err := s.source.Backup(ctx)
	if err != nil {
		return "", err
	}
	payload, err := doc.Marshal()
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, FileName(s.now()))
	tmp, err := os.CreateTemp(s.dir, ".khata_backup_*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	if err := s.prune(); err != nil {
		log.Printf("[backup] WARN: prune failed: %v", err)
	}
	return path, nil
}

func (s *Scheduler) prune() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "khata_backup_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	if len(names) <= s.retain {
		return nil
	}
	// Date-stamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-s.retain] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return err
		}
	}
	return nil
}
