package mockdst

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	logging "github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"
)

// FsReconciler mirrors a directory of endpoint files into the snapshot
// store. Each file named <name>:<port>.yaml (or .yml, .json) holds the
// complete endpoint set for that destination; creating or rewriting a file
// publishes a new snapshot and removing it retracts the destination.
//
// Failures to read or decode a file are logged and the offending event is
// skipped, leaving the previous snapshot in place.
type FsReconciler struct {
	dir       string
	publisher *Publisher
	log       *logging.Entry
}

// NewFsReconciler returns a reconciler watching dir and publishing through
// publisher.
func NewFsReconciler(dir string, publisher *Publisher) *FsReconciler {
	return &FsReconciler{
		dir:       dir,
		publisher: publisher,
		log:       logging.WithField("component", "fs-reconciler").WithField("dir", dir),
	}
}

// Run watches the directory until ctx is cancelled. Files already present
// when Run starts are published before any events are handled.
func (r *FsReconciler) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.dir, err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", r.dir, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			r.publishFile(filepath.Join(r.dir, entry.Name()))
		}
	}

	r.log.Info("watching for endpoint updates")
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.log.Debugf("received event: %v", event)
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				r.publishFile(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				r.retractFile(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warnf("watch error: %s", err)

		case <-ctx.Done():
			r.log.Debug("shutting down")
			return nil
		}
	}
}

func (r *FsReconciler) publishFile(path string) {
	dst, unmarshal, err := dstForFile(path)
	if err != nil {
		r.log.Warnf("ignoring %s: %s", filepath.Base(path), err)
		return
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		r.log.Warnf("failed to read %s: %s", filepath.Base(path), err)
		return
	}

	var records []Endpoint
	if err := unmarshal(buf, &records); err != nil {
		r.log.Warnf("failed to decode %s: %s", filepath.Base(path), err)
		return
	}

	endpoints := Endpoints{}
	for _, ep := range records {
		if ep.Addr == "" {
			r.log.Warnf("failed to decode %s: endpoint record missing address", filepath.Base(path))
			return
		}
		if _, err := parseSocketAddr(ep.Addr); err != nil {
			r.log.Warnf("failed to decode %s: %s", filepath.Base(path), err)
			return
		}
		// later records for the same address win
		endpoints[ep.Addr] = ep
	}

	r.log.Infof("publishing %d endpoints for %s", len(endpoints), dst)
	r.publisher.PublishEndpoints(dst, endpoints)
}

func (r *FsReconciler) retractFile(path string) {
	dst, _, err := dstForFile(path)
	if err != nil {
		r.log.Warnf("ignoring %s: %s", filepath.Base(path), err)
		return
	}

	r.log.Infof("retracting %s", dst)
	r.publisher.RetractEndpoints(dst)
}

// dstForFile maps a file name of the form <name>:<port>.<ext> onto its
// destination and a decoder for the file's format.
func dstForFile(path string) (Dst, func([]byte, interface{}) error, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)

	var unmarshal func([]byte, interface{}) error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		unmarshal = func(b []byte, v interface{}) error { return yaml.Unmarshal(b, v) }
	case ".json":
		unmarshal = json.Unmarshal
	default:
		return Dst{}, nil, fmt.Errorf("unsupported file extension %q", ext)
	}

	dst, err := ParseDst(strings.TrimSuffix(base, ext))
	if err != nil {
		return Dst{}, nil, err
	}
	return dst, unmarshal, nil
}
