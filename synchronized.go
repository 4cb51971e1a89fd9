package swift

import (
	"io"
	"sync"

	"github.com/gordian-engine/swift/sbin"
	"github.com/gordian-engine/swift/shash"
	"github.com/gordian-engine/swift/spubsub"
)

// Synchronized serializes access to a [*Tree]
// that is shared by several connections.
//
// It exposes the calls a transport makes on receiving hashes and chunks,
// and the progress queries a control layer makes.
// Use [*Synchronized.Do] for anything else.
//
// Each chunk that becomes present through [*Synchronized.OfferData]
// is published to the stream returned by [*Synchronized.Haves].
type Synchronized struct {
	mu    sync.Mutex
	t     *Tree
	haves *spubsub.Stream[sbin.Bin]
}

// NewSynchronized wraps t.
// The caller must not use t directly afterward.
func NewSynchronized(t *Tree) *Synchronized {
	return &Synchronized{
		t:     t,
		haves: spubsub.NewStream[sbin.Bin](),
	}
}

// Haves returns the stream position where the next newly verified chunk
// will be published.
// Chunks verified before the call are not included;
// use [*Tree.HasChunk] through [*Synchronized.Do] to read those.
func (s *Synchronized) Haves() *spubsub.Stream[sbin.Bin] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haves
}

func (s *Synchronized) OfferHash(b sbin.Bin, h shash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.OfferHash(b, h)
}

func (s *Synchronized) OfferData(b sbin.Bin, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	had := s.t.HasChunk(b)
	if err := s.t.OfferData(b, data); err != nil {
		return err
	}
	if !had {
		s.haves = s.haves.Publish(b)
	}
	return nil
}

func (s *Synchronized) Complete() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Complete()
}

func (s *Synchronized) SeqComplete() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.SeqComplete()
}

func (s *Synchronized) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.IsComplete()
}

func (s *Synchronized) SaveCheckpoint(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.SaveCheckpoint(w)
}

// Do calls fn with exclusive access to the underlying tree.
// fn must not retain the tree.
func (s *Synchronized) Do(fn func(t *Tree)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.t)
}
