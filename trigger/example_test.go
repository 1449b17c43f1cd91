package trigger_test

import (
	"fmt"
	"sync"

	"github.com/thlstsul/ime-cursor/trigger"
)

func printReady(c *trigger.Cond) {
	select {
	case <-c.Ready():
		fmt.Println("condition ready")
	default:
		fmt.Println("condition not ready")
	}
}

func ExampleCond() {
	var wg sync.WaitGroup
	defer wg.Wait()

	var c trigger.Cond

	// A waiter takes the ready channel before it checks its state, so that a
	// signal racing with the check still wakes it.
	r1 := c.Ready()
	wg.Go(func() { <-r1; fmt.Println("task 1: ready") })

	fmt.Println("signal")
	c.Signal()
	wg.Wait()

	// Signal re-arms the condition; later arrivals wait for the next event.
	printReady(&c)

	// Close latches the condition. Every waiter, present or future, is woken.
	r2 := c.Ready()
	wg.Go(func() { <-r2; fmt.Println("task 2: ready") })

	fmt.Println("close")
	c.Close()
	wg.Wait()
	printReady(&c)

	// Unordered output:
	// signal
	// task 1: ready
	// condition not ready
	// close
	// task 2: ready
	// condition ready
}
