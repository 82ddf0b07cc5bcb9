package statusstore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/deferrun/pkg/clock"
	"github.com/cuemby/deferrun/pkg/events"
	"github.com/cuemby/deferrun/pkg/types"
	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces a burst of rapid file changes into one
// notification.
const debounceWindow = 100 * time.Millisecond

// notifier abstracts the two watch backends (event-driven and polling);
// correctness must not depend on which one is active.
type notifier interface {
	subscribe(taskID types.TaskID) (ch chan struct{}, cancel func())
	close() error
}

// fsnotifyNotifier watches the status directory with a single
// fsnotify.Watcher and fans debounced per-task notifications out to
// subscribers.
type fsnotifyNotifier struct {
	watcher *fsnotify.Watcher
	broker  *events.Broker

	mu      sync.Mutex
	subs    map[types.TaskID][]chan struct{}
	lastHit map[types.TaskID]time.Time

	done chan struct{}
}

func newFsnotifyNotifier(dir string, broker *events.Broker) (*fsnotifyNotifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	n := &fsnotifyNotifier{
		watcher: w,
		broker:  broker,
		subs:    make(map[types.TaskID][]chan struct{}),
		lastHit: make(map[types.TaskID]time.Time),
		done:    make(chan struct{}),
	}
	go n.run()
	return n, nil
}

func (n *fsnotifyNotifier) run() {
	for {
		select {
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, statusSuffix) {
				continue
			}
			n.fire(types.TaskID(strings.TrimSuffix(name, statusSuffix)))

		case <-n.watcher.Errors:
			// Surfaced nowhere; a broken watcher degrades to "no live
			// updates" for existing subscribers, who still get the
			// final terminal status on their next poll-driven read.

		case <-n.done:
			return
		}
	}
}

func (n *fsnotifyNotifier) fire(taskID types.TaskID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Only a delivered notification opens a debounce window; a write that
	// nobody is subscribed to does not suppress the next subscriber's.
	subs := n.subs[taskID]
	if len(subs) == 0 {
		return
	}
	if last, ok := n.lastHit[taskID]; ok && time.Since(last) < debounceWindow {
		return
	}
	n.lastHit[taskID] = time.Now()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (n *fsnotifyNotifier) subscribe(taskID types.TaskID) (chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	n.subs[taskID] = append(n.subs[taskID], ch)
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subs[taskID]
		for i, c := range subs {
			if c == ch {
				n.subs[taskID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (n *fsnotifyNotifier) close() error {
	close(n.done)
	return n.watcher.Close()
}

// pollingNotifier is the fallback backend for platforms or environments
// where fsnotify cannot be initialized. Each subscription runs its own
// stat-polling goroutine; the poll interval doubles as the debounce
// window.
type pollingNotifier struct {
	dir string
	clk clock.Clock

	wg   sync.WaitGroup
	done chan struct{}
}

func newPollingNotifier(dir string, clk clock.Clock, _ *events.Broker) *pollingNotifier {
	return &pollingNotifier{dir: dir, clk: clk, done: make(chan struct{})}
}

func (p *pollingNotifier) subscribe(taskID types.TaskID) (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	stop := make(chan struct{})

	path := filepath.Join(p.dir, string(taskID)+statusSuffix)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := p.clk.NewTicker(debounceWindow)
		defer ticker.Stop()

		var lastMod time.Time
		for {
			select {
			case <-ticker.C():
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if info.ModTime().After(lastMod) {
					lastMod = info.ModTime()
					select {
					case ch <- struct{}{}:
					default:
					}
				}
			case <-stop:
				return
			case <-p.done:
				return
			}
		}
	}()

	cancel := sync.OnceFunc(func() {
		close(stop)
	})
	return ch, cancel
}

func (p *pollingNotifier) close() error {
	close(p.done)
	p.wg.Wait()
	return nil
}
