// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package concurrent

import (
	"os"
	"sync"
)

// Runnable is any server component that spawns zero or more goroutines, such
// as a listener, a deployment scanner, or a resource monitor.
type Runnable interface {
	// Run starts this component, returning an error if it could not be
	// started.  Implementations spawn their goroutines here and are
	// responsible for the WaitGroup bookkeeping of each one.  Run should
	// generally be idempotent.
	//
	// Closing the shutdown channel signals every spawned goroutine to exit
	// gracefully.  Callers then wait on the WaitGroup for cleanup to finish.
	Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error
}

// RunnableFunc is a function type that implements Runnable
type RunnableFunc func(*sync.WaitGroup, <-chan struct{}) error

func (r RunnableFunc) Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error {
	return r(waitGroup, shutdown)
}

// RunnableSet groups components under a single Runnable.  The components are
// started in order, stopping at the first one that fails.
type RunnableSet []Runnable

func (set RunnableSet) Run(waitGroup *sync.WaitGroup, shutdown <-chan struct{}) error {
	for _, operation := range set {
		if err := operation.Run(waitGroup, shutdown); err != nil {
			return err
		}
	}

	return nil
}

// Execute creates the synchronization objects a Runnable needs and invokes Run
func Execute(runnable Runnable) (waitGroup *sync.WaitGroup, shutdown chan struct{}, err error) {
	waitGroup = &sync.WaitGroup{}
	shutdown = make(chan struct{})
	err = runnable.Run(waitGroup, shutdown)
	return
}

// Await runs a runnable via Execute, then blocks until the signal channel
// produces a value before shutting everything down gracefully.
func Await(runnable Runnable, signals <-chan os.Signal) error {
	waitGroup, shutdown, err := Execute(runnable)
	if err != nil {
		return err
	}

	<-signals

	close(shutdown)
	waitGroup.Wait()
	return nil
}
