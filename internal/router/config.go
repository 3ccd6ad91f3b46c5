package router

import "time"

// defaultOrderExpiration bounds how long a freshly posted order stays
// pending before the scheduler's expiry sweep reclaims it.
const defaultOrderExpiration = 24 * time.Hour
