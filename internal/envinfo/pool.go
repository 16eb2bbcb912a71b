package envinfo

import "golang.org/x/sync/errgroup"

type job func()

// runPool executes jobs with at most maxWorkers concurrently and waits for
// all of them. Jobs report their own results.
func runPool(maxWorkers int, jobs []job) {
	var g errgroup.Group
	g.SetLimit(max(maxWorkers, 1))
	for _, j := range jobs {
		g.Go(func() error {
			j()
			return nil
		})
	}
	g.Wait()
}
