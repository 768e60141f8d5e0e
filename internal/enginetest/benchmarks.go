package enginetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// BenchFactory creates a fresh engine for one benchmark.
type BenchFactory func(b *testing.B) types.Engine

// RunEngineBenchmarks measures single-record writes, keyed reads, and
// index lookups on an engine.
func RunEngineBenchmarks(b *testing.B, name string, factory BenchFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Add", func(b *testing.B) {
			conn := benchOpen(b, factory(b))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				benchWrite(b, conn, func(txn types.Txn) error {
					_, err := txn.Add(types.Record{"color": "red", "n": i})
					return err
				})
			}
		})

		b.Run("Get", func(b *testing.B) {
			conn := benchOpen(b, factory(b))
			benchFill(b, conn, 1000)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				benchRead(b, conn, func(txn types.Txn) error {
					_, err := txn.Get(float64(i%1000 + 1))
					return err
				})
			}
		})

		b.Run("GetByIndex", func(b *testing.B) {
			conn := benchOpen(b, factory(b))
			benchFill(b, conn, 1000)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				benchRead(b, conn, func(txn types.Txn) error {
					_, err := txn.GetByIndex("sku", fmt.Sprintf("sku-%d", i%1000))
					return err
				})
			}
		})
	})
}

func benchOpen(b *testing.B, e types.Engine) types.Conn {
	b.Helper()
	conn, err := e.Open(context.Background(), "bench", 1, createAll(itemStore))
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	b.Cleanup(func() { conn.Close() })
	return conn
}

func benchFill(b *testing.B, conn types.Conn, n int) {
	b.Helper()
	benchWrite(b, conn, func(txn types.Txn) error {
		for i := 0; i < n; i++ {
			if _, err := txn.Add(types.Record{"sku": fmt.Sprintf("sku-%d", i)}); err != nil {
				return err
			}
		}
		return nil
	})
}

func benchWrite(b *testing.B, conn types.Conn, fn func(types.Txn) error) {
	txn, err := conn.Begin(context.Background(), "item", types.ReadWrite)
	if err != nil {
		b.Fatalf("begin: %v", err)
	}
	if err := fn(txn); err != nil {
		txn.Rollback()
		b.Fatalf("write: %v", err)
	}
	if err := txn.Commit(); err != nil {
		b.Fatalf("commit: %v", err)
	}
}

func benchRead(b *testing.B, conn types.Conn, fn func(types.Txn) error) {
	txn, err := conn.Begin(context.Background(), "item", types.ReadOnly)
	if err != nil {
		b.Fatalf("begin: %v", err)
	}
	defer txn.Commit()
	if err := fn(txn); err != nil {
		b.Fatalf("read: %v", err)
	}
}
