// Package types defines the database configuration, store schemas, the
// record and key model, the Engine/Conn/Txn contracts that storage engines
// implement, and the standard errors for the larder storage system.
package types
