// overpassctl is a minimal demonstration shell around internal/storage:
// enough to create-or-open a database file, create a table, and
// insert/fetch one record. It does not implement prompt rendering,
// clipboard integration, cloud upload, or real argument parsing — those
// stay external collaborators, same as the core library itself.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/elseecay/overpass/internal/rowstore"
	"github.com/elseecay/overpass/internal/storage"
)

func printFatal(msg string, args ...interface{}) {
	printErr(msg, args...)
	os.Exit(1)
}

func printErr(msg string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, fmt.Sprintf(msg, args...))
}

func main() {
	if len(os.Args) < 3 {
		printFatal("usage: overpassctl <db-path> <create|open|put|get> [args...]")
	}

	path := os.Args[1]
	cmd := os.Args[2]
	password := os.Getenv("OVERPASS_PASSWORD")
	if password == "" {
		printFatal("OVERPASS_PASSWORD must be set")
	}

	ctx := context.Background()

	switch cmd {
	case "create":
		createCommand(ctx, path, password)
	case "open":
		openCommand(ctx, path, password)
	case "put":
		if len(os.Args) != 6 {
			printFatal("usage: overpassctl <db-path> put <table> <key> <value>")
		}
		putCommand(ctx, path, password, os.Args[3], os.Args[4], os.Args[5])
	case "get":
		if len(os.Args) != 5 {
			printFatal("usage: overpassctl <db-path> get <table> <key>")
		}
		getCommand(ctx, path, password, os.Args[3], os.Args[4])
	default:
		printFatal("unknown command %q", cmd)
	}
}

func createCommand(ctx context.Context, path, password string) {
	store, err := rowstore.Create(ctx, path, false)
	if err != nil {
		printFatal("create row store: %v", err)
	}
	conn, err := storage.Create(ctx, store, password, storage.Options{})
	if err != nil {
		printFatal("create database: %v", err)
	}
	defer conn.Close()
	dbid, err := conn.GetDBID(ctx)
	if err != nil {
		printFatal("get dbid: %v", err)
	}
	fmt.Printf("created %s (dbid %s)\n", path, dbid)
}

func openCommand(ctx context.Context, path, password string) {
	conn := mustOpen(ctx, path, password)
	defer conn.Close()
	version, err := conn.GetAppVersion(ctx)
	if err != nil {
		printFatal("get app version: %v", err)
	}
	fmt.Printf("opened %s (app version %s)\n", path, version)
}

func putCommand(ctx context.Context, path, password, table, key, value string) {
	conn := mustOpen(ctx, path, password)
	defer conn.Close()
	if !conn.TableExists(ctx, table) {
		if err := conn.CreateTable(ctx, table, false); err != nil {
			printFatal("create table %q: %v", table, err)
		}
	}
	if err := conn.InsertRecord(ctx, table, key, map[string]string{"value": value}); err != nil {
		printFatal("insert record: %v", err)
	}
	fmt.Printf("stored %s/%s\n", table, key)
}

func getCommand(ctx context.Context, path, password, table, key string) {
	conn := mustOpen(ctx, path, password)
	defer conn.Close()
	attribs, found, err := conn.GetRecord(ctx, table, key)
	if err != nil {
		printFatal("get record: %v", err)
	}
	if !found {
		printFatal("no record %s/%s", table, key)
	}
	fmt.Println(attribs["value"])
}

func mustOpen(ctx context.Context, path, password string) *storage.Connection {
	store, err := rowstore.Open(ctx, path)
	if err != nil {
		printFatal("open row store: %v", err)
	}
	conn, err := storage.Open(ctx, store, password)
	if err != nil {
		printFatal("open database: %v", err)
	}
	return conn
}
