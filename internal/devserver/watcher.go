package devserver

import (
	"context"
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"

	"github.com/updraft-ota/updraft/internal/eventbus"
)

// DirectoryChange is the payload published on TopicStorage when the updates
// directory is modified from outside the process (dev tooling swapping
// bundles underneath a running host shell).
type DirectoryChange struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

// watch publishes updates-directory changes onto the bus until ctx is done.
func (s *Server) watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("devserver: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("devserver: watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.bus.Publish(eventbus.Envelope{
					Topic:   eventbus.TopicStorage,
					Source:  "devserver",
					Payload: DirectoryChange{Path: event.Name, Op: event.Op.String()},
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[DevServer] watcher: %v", err)
			}
		}
	}()

	return nil
}
