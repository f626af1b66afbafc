package connectivity

import (
	"os"
	"os/signal"
	"syscall"
)

// SignalHandler receives platform lifecycle signals. The Monitor implements
// it; tests can call the methods directly.
type SignalHandler interface {
	ConnectivityChanged(online bool)
	Foreground()
	Shutdown()
}

// SignalSource feeds platform signals to a handler. Implementations differ
// per platform; consumers treat them identically.
type SignalSource interface {
	Start(handler SignalHandler)
	Stop()
}

// OSSignalSource maps POSIX process signals onto the lifecycle signals a
// headless agent has: SIGTERM/SIGINT become the teardown signal, SIGCONT
// (resume after stop) becomes the foreground signal. Network up/down has no
// portable process signal, so connectivity changes come only from the
// heartbeat on this platform.
type OSSignalSource struct {
	sigs chan os.Signal
	stop chan struct{}
}

func NewOSSignalSource() *OSSignalSource {
	return &OSSignalSource{
		sigs: make(chan os.Signal, 1),
		stop: make(chan struct{}),
	}
}

func (s *OSSignalSource) Start(handler SignalHandler) {
	signal.Notify(s.sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGCONT)
	go func() {
		for {
			select {
			case <-s.stop:
				return
			case sig := <-s.sigs:
				switch sig {
				case syscall.SIGCONT:
					handler.Foreground()
				case syscall.SIGINT, syscall.SIGTERM:
					handler.Shutdown()
					return
				}
			}
		}
	}()
}

func (s *OSSignalSource) Stop() {
	signal.Stop(s.sigs)
	close(s.stop)
}
