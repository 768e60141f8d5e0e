// Package larder is a CRUD layer over embedded object-store databases.
//
// A database is declared with a types.Config: a name, a version, and the
// stores it holds. Each store has a key path, an auto-increment flag, and
// optional secondary indexes. Open creates any declared store that is
// missing when the requested version is newer than the stored one.
//
// Every operation is a blocking call that runs in exactly one transaction
// on one store and returns a single result or an *OpError. The empty
// store name selects the first declared store.
//
//	db, err := larder.Open(ctx, types.Config{
//	    Name:   "notes",
//	    Stores: []types.StoreSchema{{Name: "note", Indexes: []types.IndexSpec{{Key: "title"}}}},
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	key, err := db.Add(ctx, "", types.Record{"title": "groceries"})
//
// Storage engines ("sqlite", "bolt", "memory") register themselves with
// Register and are selected by Config.Backend.
package larder
