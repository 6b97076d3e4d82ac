// Package store implements the persistent repositories of the pipeline on top
// of core.KVStore. Any backend with atomic set-if-absent (memory, SQL, Redis)
// can carry credentials, statuses, the event ledger, subscriptions and sync
// snapshots.
//
// Key layout:
//
//	credentials/{platform}
//	status/{platform}
//	events/{platform}/d/{deliveryId} | events/{platform}/f/{fingerprint}
//	subscriptions/{platform}/{resource}
//	snapshots/{platform}/{appId}/{syncedAt}-{id}
//	oauth_state/{state}
package store
