// Package apartment provides a single-worker active-object executor.
//
// An [Apartment] confines every operation on the resources it hosts to one
// dedicated goroutine, pinned to its OS thread. Work is submitted from any
// goroutine with [Apartment.Invoke] (or [Call] for value-returning work) and
// runs on the worker strictly in submission order, one unit at a time. The
// result is delivered through a [Future].
//
// Resources created on the worker that hand out references to other
// goroutines are tracked by the apartment's [Guard]. [Apartment.Shutdown]
// severs them all on the worker before the per-context [Runtime] state is torn
// down, then stops and joins the worker. While it waits, the owner keeps
// serving its [Mailbox], so a resource whose release must run on the owner
// cannot deadlock the shutdown.
//
//	owner := apartment.NewMailbox(64)
//	apt, err := apartment.Start(apartment.WithOwner(owner))
//	if err != nil {
//	    return err
//	}
//	fut, err := apartment.Call(apt, func() (int, error) { return 42, nil })
//	if err != nil {
//	    return err
//	}
//	v, err := fut.Wait(ctx)
//	...
//	err = apt.Shutdown(ctx)
package apartment
