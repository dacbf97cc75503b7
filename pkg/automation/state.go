package automation

import (
	"sort"
	"sync"
)

// State holds the pending image paths and uploaded media ids, both keyed by thread index.
// The mutex only keeps the maps themselves consistent; it does not make
// overlapping tool calls meaningful.
type State struct {
	mu     sync.Mutex
	images map[int][]string
	media  map[int][]string
}

func NewState() *State {
	return &State{
		images: make(map[int][]string),
		media:  make(map[int][]string),
	}
}

// AddImage appends a pending image path to a thread
func (s *State) AddImage(thread int, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[thread] = append(s.images[thread], path)
}

// PendingImages returns a copy of the pending images
func (s *State) PendingImages() map[int][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyThreads(s.images)
}

// HasPendingImages reports whether any thread holds an image
func (s *State) HasPendingImages() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, paths := range s.images {
		if len(paths) > 0 {
			return true
		}
	}
	return false
}

// SetMedia replaces the uploaded media references wholesale
func (s *State) SetMedia(media map[int][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = copyThreads(media)
}

// Media returns the uploaded media ids for one thread
func (s *State) Media(thread int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.media[thread]...)
}

// Reset empties both maps
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = make(map[int][]string)
	s.media = make(map[int][]string)
}

// Snapshot is the read-only view returned by GetState
type Snapshot struct {
	Images            map[int][]string `json:"images"`
	UploadedMediaIDs  map[int][]string `json:"uploadedMediaIds"`
	ImageStoragePath  string           `json:"imageStoragePath"`
	TotalImages       int              `json:"totalImages"`
	ThreadsWithImages []int            `json:"threadsWithImages"`
}

func (s *State) snapshot(storagePath string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Images:            copyThreads(s.images),
		UploadedMediaIDs:  copyThreads(s.media),
		ImageStoragePath:  storagePath,
		ThreadsWithImages: sortedThreads(s.images),
	}
	for _, paths := range s.images {
		snap.TotalImages += len(paths)
	}
	return snap
}

func copyThreads(in map[int][]string) map[int][]string {
	out := make(map[int][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// sortedThreads returns the map's keys in ascending numeric order
func sortedThreads(m map[int][]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
