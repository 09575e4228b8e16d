package redis

// Redis key naming conventions for forq data.
// All keys are prefixed with "forq:" to avoid collisions.

const keyPrefix = "forq:"

// jobKeyPrefix prefixes every job hash key: forq:job:{id}
const jobKeyPrefix = keyPrefix + "job:"

// jobKey returns the Hash key for a job entity.
func jobKey(id string) string { return jobKeyPrefix + id }

// stateKey returns the Sorted Set key indexing a state, scored by
// created_at so range queries come back oldest first: forq:state:{state}
func stateKey(state string) string { return keyPrefix + "state:" + state }

// settingsKey is the Hash holding all durable settings.
const settingsKey = keyPrefix + "settings"
