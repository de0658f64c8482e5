// Package redis provides the run lock that keeps two runs of the same
// routine from overlapping, on top of a go-redis client with crossmatch
// logging and component lifecycle.
//
//	comp := redis.NewComponent(cfg)
//	...
//	lock, err := comp.Client().Acquire(ctx, "ogaster", runID)
//	if err != nil {
//	    return err // LOCKED when another run holds it
//	}
//	defer lock.Release(context.WithoutCancel(ctx))
package redis
