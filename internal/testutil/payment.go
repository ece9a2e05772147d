package testutil

import (
	"context"
	"fmt"
	"sync"

	"bakery-backend/internal/payment"
)

// FakeProcessor is an in-memory payment processor. Set the *Err fields to script
// failures; a handle captured once returns payment.ErrAlreadyCaptured afterwards.
type FakeProcessor struct {
	mu sync.Mutex

	AuthorizeErr error
	CaptureErr   error
	CancelErr    error

	Authorized []payment.AuthorizeRequest
	Captures   map[string]int
	Cancels    map[string]int

	captured  map[string]bool
	cancelled map[string]bool
	next      int
}

func NewFakeProcessor() *FakeProcessor {
	return &FakeProcessor{
		Captures:  map[string]int{},
		Cancels:   map[string]int{},
		captured:  map[string]bool{},
		cancelled: map[string]bool{},
	}
}

func (f *FakeProcessor) Authorize(_ context.Context, req payment.AuthorizeRequest) (payment.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AuthorizeErr != nil {
		return payment.Authorization{}, f.AuthorizeErr
	}
	f.next++
	f.Authorized = append(f.Authorized, req)
	handle := fmt.Sprintf("pi_fake_%d", f.next)
	return payment.Authorization{Handle: handle, ClientSecret: handle + "_secret"}, nil
}

func (f *FakeProcessor) Capture(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Captures[handle]++
	if f.CaptureErr != nil {
		return f.CaptureErr
	}
	if f.captured[handle] {
		return payment.ErrAlreadyCaptured
	}
	f.captured[handle] = true
	return nil
}

func (f *FakeProcessor) Cancel(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Cancels[handle]++
	if f.CancelErr != nil {
		return f.CancelErr
	}
	if f.cancelled[handle] {
		return payment.ErrAlreadyCancelled
	}
	f.cancelled[handle] = true
	return nil
}

// CaptureCalls returns how many times Capture was invoked for handle.
func (f *FakeProcessor) CaptureCalls(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Captures[handle]
}

func (f *FakeProcessor) CancelCalls(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Cancels[handle]
}

// SetCaptureErr swaps the scripted capture failure while requests may be in flight.
func (f *FakeProcessor) SetCaptureErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CaptureErr = err
}
