/*
Package storage is the persistence layer for all Sirocco entities.

The Store interface is the only shared mutable resource in the controller:
every component receives one by construction and all writers go through it.
The gorm-backed implementation supports an embedded sqlite backend (default,
single-writer, writes serialized behind a process mutex) and postgres
(concurrent writers, row-level locks plus deadlock retry).

# Listing and filters

List operations take a ListQuery. Filter keys accept operator suffixes:

	store.ListAudits(&storage.ListQuery{
		Filters: map[string]any{
			"state__in":   []string{"PENDING", "ONGOING"},
			"goal_uuid":   goalUUID,          // joined column
			"created_at__gte": "2015-01-01",
		},
		SortKey: "created_at",
		Limit:   50,
		Marker:  lastRowUUID,
	})

Joined filter keys (goal_uuid, strategy_uuid, audit_uuid, action_plan_uuid
and their _name variants) resolve through the entity's join map. The
reserved key "deleted" selects tombstoned rows when truthy; without it only
live rows are returned.

# Error taxonomy

NotFoundError, AlreadyExistsError, ReferencedError, InvalidError and
DatabaseError cover every failure; the IsNotFound/IsAlreadyExists/
IsReferenced/IsInvalid predicates match through wrapping. UUIDs are
immutable after creation: updates carrying a different UUID fail with
InvalidError and leave the row unchanged.
*/
package storage
