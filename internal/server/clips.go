// SPDX-License-Identifier: MIT
package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	applog "pulse/internal/log"
	"pulse/internal/playback"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNoClips is returned by Next when the clip directory has no WAV files.
var ErrNoClips = errors.New("no clips available")

// clipEntry is a cached clip file. The decoded form is filled on first use.
type clipEntry struct {
	name    string
	data    []byte
	modTime int64

	once   sync.Once
	clip   *playback.Clip
	decErr error
}

func (e *clipEntry) decoded() (*playback.Clip, error) {
	e.once.Do(func() {
		e.clip, e.decErr = playback.DecodeWAV(e.data)
	})
	return e.clip, e.decErr
}

// ClipLibrary hands out the WAV files in a directory round-robin. The
// directory is rescanned on every call so new files show up; file contents
// are kept in an LRU cache.
type ClipLibrary struct {
	dir   string
	cache *lru.Cache[string, *clipEntry]

	mu   sync.Mutex
	next int
}

// NewClipLibrary creates dir if needed. cacheSize below 1 is treated as 1.
func NewClipLibrary(dir string, cacheSize int) (*ClipLibrary, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create clip directory: %w", err)
	}
	cache, err := lru.New[string, *clipEntry](max(1, cacheSize))
	if err != nil {
		return nil, err
	}
	return &ClipLibrary{dir: dir, cache: cache}, nil
}

// Names lists the WAV files in the directory, sorted.
func (l *ClipLibrary) Names() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Next returns the following clip in rotation.
func (l *ClipLibrary) Next() (*clipEntry, error) {
	names, err := l.Names()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, ErrNoClips
	}

	l.mu.Lock()
	name := names[l.next%len(names)]
	l.next++
	l.mu.Unlock()

	return l.load(name)
}

func (l *ClipLibrary) load(name string) (*clipEntry, error) {
	path := filepath.Join(l.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if e, ok := l.cache.Get(name); ok && e.modTime == info.ModTime().UnixNano() {
		return e, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e := &clipEntry{name: name, data: data, modTime: info.ModTime().UnixNano()}
	l.cache.Add(name, e)
	applog.Debugf("Server: Loaded clip %s (%d bytes)", name, len(data))
	return e, nil
}

// Cached returns the number of clips held in memory.
func (l *ClipLibrary) Cached() int {
	return l.cache.Len()
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	e, err := s.clips.Next()
	if errors.Is(err, ErrNoClips) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		applog.Errorf("Server: Loading clip: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load clip"})
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", e.name))
	_, _ = w.Write(e.data)
}

func (s *Server) handleAudioArray(w http.ResponseWriter, r *http.Request) {
	e, err := s.clips.Next()
	if errors.Is(err, ErrNoClips) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		applog.Errorf("Server: Loading clip: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load clip"})
		return
	}
	clip, err := e.decoded()
	if err != nil {
		applog.Errorf("Server: Decoding clip %s: %v", e.name, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to decode clip", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, playback.SamplesPayload{
		Audio:      clip.Samples,
		SampleRate: clip.SampleRate,
		Channels:   clip.Channels,
	})
}
