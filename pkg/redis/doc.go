// Package redis connects to Redis through go-redis and provides a
// distributed entity lock for statekit machines.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	m, err := statemachine.New(field, Draft, transitions,
//	    statemachine.WithLocker(redis.NewLocker(client, lockCfg)),
//	)
//
// Locker holds a lease on key Prefix+entityType+":"+id. The lease is renewed
// while the locked function runs, and only the holder's token can release it.
// Unlike the database lockers it provides no transaction, so entity writes
// made under it are not atomic with the lock.
//
// Config and LockConfig are populated from REDIS_* environment variables via
// github.com/caarlos0/env. Healthcheck returns a readiness check.
package redis
