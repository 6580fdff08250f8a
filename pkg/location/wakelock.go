package location

import (
	"fmt"
	"os/exec"
	"sync"
)

// WakeLock keeps the device awake while continuous acquisition is running.
// The service reacquires the lock if the platform revokes it out from under
// an active acquisition.
type WakeLock interface {
	Acquire() error
	Release() error
	Held() bool
}

// SystemdInhibitLock holds an idle/sleep inhibitor by keeping a
// systemd-inhibit child process alive. If the process dies, the lock reports
// not held and can be reacquired.
type SystemdInhibitLock struct {
	who string
	why string

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewSystemdInhibitLock creates a wake lock identified to the platform by the
// given who/why strings.
func NewSystemdInhibitLock(who, why string) *SystemdInhibitLock {
	return &SystemdInhibitLock{who: who, why: why}
}

// Acquire starts the inhibitor process. Calling Acquire while held is a no-op.
func (l *SystemdInhibitLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.heldLocked() {
		return nil
	}

	cmd := exec.Command("systemd-inhibit",
		"--what=idle:sleep",
		"--who="+l.who,
		"--why="+l.why,
		"--mode=block",
		"sleep", "infinity")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting systemd-inhibit: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	l.cmd = cmd
	l.exited = exited
	return nil
}

// Release stops the inhibitor process. Idempotent.
func (l *SystemdInhibitLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd == nil {
		return nil
	}
	if l.heldLocked() {
		_ = l.cmd.Process.Kill()
		<-l.exited
	}
	l.cmd = nil
	l.exited = nil
	return nil
}

// Held reports whether the inhibitor process is still alive.
func (l *SystemdInhibitLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heldLocked()
}

func (l *SystemdInhibitLock) heldLocked() bool {
	if l.cmd == nil {
		return false
	}
	select {
	case <-l.exited:
		return false
	default:
		return true
	}
}

// NoopWakeLock satisfies WakeLock on platforms without an inhibitor
// mechanism.
type NoopWakeLock struct {
	mu   sync.Mutex
	held bool
}

// NewNoopWakeLock creates a wake lock that only tracks its own state.
func NewNoopWakeLock() *NoopWakeLock {
	return &NoopWakeLock{}
}

func (l *NoopWakeLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
	return nil
}

func (l *NoopWakeLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

func (l *NoopWakeLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}
