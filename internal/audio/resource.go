package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrUnknownRoute = errors.New("unknown audio route")

// Route selects the output used for call audio.
type Route string

const (
	RouteSpeakerphone Route = "Speakerphone"
	RouteEarpiece     Route = "Earpiece"
)

// Device opens physical looping playbacks. Only Resource talks to a Device.
type Device interface {
	Open() (Playback, error)
}

// Playback is one physical playback instance.
type Playback interface {
	Start() error
	Stop() error
	Release() error
}

// RouteSetter is implemented by devices that can switch output routes.
type RouteSetter interface {
	SetRoute(Route) error
}

// Resource owns the single looping ringtone playback for the process.
// Start reuses the live playback; Stop releases it and is always safe to repeat.
type Resource struct {
	mu       sync.Mutex
	device   Device
	playback Playback
	playing  bool
	route    Route
	opens    int
}

func NewResource(device Device) *Resource {
	if device == nil {
		device = NullDevice{}
	}
	return &Resource{device: device, route: RouteSpeakerphone}
}

func (r *Resource) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.playback == nil {
		pb, err := r.device.Open()
		if err != nil {
			return fmt.Errorf("open playback: %w", err)
		}
		r.playback = pb
		r.opens++
		slog.Debug("ringtone playback created")
	} else {
		slog.Debug("reusing ringtone playback")
	}
	if r.playing {
		return nil
	}
	if err := r.playback.Start(); err != nil {
		r.releaseLocked()
		return fmt.Errorf("start playback: %w", err)
	}
	r.playing = true
	return nil
}

func (r *Resource) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.playback == nil {
		return nil
	}
	var errs []error
	if r.playing {
		if err := r.playback.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playback: %w", err))
		}
	}
	if err := r.releaseLocked(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// releaseLocked drops the playback even when Release fails, so the resource
// never believes a dead handle is still playing.
func (r *Resource) releaseLocked() error {
	pb := r.playback
	r.playback = nil
	r.playing = false
	if err := pb.Release(); err != nil {
		return fmt.Errorf("release playback: %w", err)
	}
	return nil
}

func (r *Resource) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// Opens reports how many physical playbacks have been created so far.
func (r *Resource) Opens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opens
}

func (r *Resource) Routes() []Route {
	return []Route{RouteSpeakerphone, RouteEarpiece}
}

func (r *Resource) Route() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.route
}

func (r *Resource) SetRoute(route Route) error {
	switch route {
	case RouteSpeakerphone, RouteEarpiece:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRoute, route)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rs, ok := r.device.(RouteSetter); ok {
		if err := rs.SetRoute(route); err != nil {
			return err
		}
	}
	r.route = route
	return nil
}

// NullDevice plays nothing. Used when no audio output is wired.
type NullDevice struct{}

func (NullDevice) Open() (Playback, error) { return nullPlayback{}, nil }

type nullPlayback struct{}

func (nullPlayback) Start() error   { return nil }
func (nullPlayback) Stop() error    { return nil }
func (nullPlayback) Release() error { return nil }
