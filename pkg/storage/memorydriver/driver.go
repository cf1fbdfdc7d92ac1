// Package memorydriver serves the world_state table through database/sql from
// process memory, so the SQL store runs without any database installed.
package memorydriver

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// snapshot is written to disk after each mutation so the driver survives restarts.
type snapshot struct {
	Namespaces map[string]map[string][]byte `json:"namespaces"`
}

// entry is one row of a scan.
type entry struct {
	key   string
	value []byte
}

// storeCommand models every operation executed against the in-memory store.
type storeCommand struct {
	action    string
	namespace string
	key       string
	end       string
	value     []byte
	reply     chan storeResult
}

// storeResult transfers either the value, a range of entries, or an error.
type storeResult struct {
	value    []byte
	found    bool
	entries  []entry
	affected int64
	err      error
}

// store keeps the namespaces guarded by a dedicated goroutine.
type store struct {
	commands        chan storeCommand
	closed          chan struct{}
	done            chan struct{}
	persistRequests chan snapshot
	persistDone     chan struct{}
	namespaces      map[string]map[string][]byte
	snapshotPath    string
	logger          *zap.Logger
}

// newStore creates a store and spins the goroutines so every access flows through a channel.
func newStore(path string, logger *zap.Logger) (*store, error) {
	loaded, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	s := &store{
		// A small buffer keeps bootstrap operations from blocking before the store goroutine spins up.
		commands:        make(chan storeCommand, 32),
		closed:          make(chan struct{}),
		done:            make(chan struct{}),
		persistRequests: make(chan snapshot, 1),
		persistDone:     make(chan struct{}),
		namespaces:      make(map[string]map[string][]byte),
		snapshotPath:    path,
		logger:          logger,
	}
	if loaded != nil && loaded.Namespaces != nil {
		s.namespaces = loaded.Namespaces
	}
	go s.loop()
	go s.persistenceLoop()
	return s, nil
}

// loop serializes every mutation and read request to keep the state safe without mutexes.
func (s *store) loop() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.commands:
			cmd.reply <- s.apply(cmd)
		case <-s.closed:
			return
		}
	}
}

func (s *store) apply(cmd storeCommand) storeResult {
	switch cmd.action {
	case "put":
		ns, ok := s.namespaces[cmd.namespace]
		if !ok {
			ns = make(map[string][]byte)
			s.namespaces[cmd.namespace] = ns
		}
		ns[cmd.key] = cloneBytes(cmd.value)
		s.queuePersist()
		return storeResult{affected: 1}
	case "get":
		value, ok := s.namespaces[cmd.namespace][cmd.key]
		return storeResult{value: cloneBytes(value), found: ok}
	case "scan":
		return storeResult{entries: s.scan(cmd.namespace, cmd.key, cmd.end)}
	case "delete":
		ns := s.namespaces[cmd.namespace]
		if _, ok := ns[cmd.key]; !ok {
			return storeResult{}
		}
		delete(ns, cmd.key)
		s.queuePersist()
		return storeResult{affected: 1}
	case "noop":
		return storeResult{}
	default:
		return storeResult{err: fmt.Errorf("unsupported action %s", cmd.action)}
	}
}

// scan returns the keys in [start, end) in order; an empty end means unbounded.
func (s *store) scan(namespace, start, end string) []entry {
	ns := s.namespaces[namespace]
	keys := make([]string, 0, len(ns))
	for key := range ns {
		if key < start || (end != "" && key >= end) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]entry, 0, len(keys))
	for _, key := range keys {
		out = append(out, entry{key: key, value: cloneBytes(ns[key])})
	}
	return out
}

// persistenceLoop writes snapshots asynchronously so the main loop stays responsive.
func (s *store) persistenceLoop() {
	defer close(s.persistDone)
	for {
		select {
		case snap := <-s.persistRequests:
			if err := writeSnapshot(s.snapshotPath, snap); err != nil {
				s.logger.Error("memory snapshot write failed", zap.String("path", s.snapshotPath), zap.Error(err))
			}
		case <-s.closed:
			return
		}
	}
}

// queuePersist sends the current snapshot to the background writer without blocking.
func (s *store) queuePersist() {
	if s.snapshotPath == "" {
		return
	}
	snap := s.snapshot()
	select {
	case s.persistRequests <- snap:
	default:
		select {
		case <-s.persistRequests:
		default:
		}
		s.persistRequests <- snap
	}
}

func (s *store) snapshot() snapshot {
	out := snapshot{Namespaces: make(map[string]map[string][]byte, len(s.namespaces))}
	for name, ns := range s.namespaces {
		cloned := make(map[string][]byte, len(ns))
		for key, value := range ns {
			cloned[key] = cloneBytes(value)
		}
		out.Namespaces[name] = cloned
	}
	return out
}

// close stops both goroutines and writes a final snapshot so nothing queued is lost.
func (s *store) close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	<-s.done
	<-s.persistDone
	if s.snapshotPath == "" {
		return nil
	}
	return writeSnapshot(s.snapshotPath, s.snapshot())
}

// enqueue sends the command to the store while honoring a timeout to avoid blocking forever.
func (s *store) enqueue(ctx context.Context, cmd storeCommand) (storeResult, error) {
	cmd.reply = make(chan storeResult, 1)
	select {
	case s.commands <- cmd:
	case <-s.closed:
		return storeResult{}, errors.New("memory store is closed")
	case <-ctx.Done():
		return storeResult{}, ctx.Err()
	case <-time.After(2 * time.Second):
		return storeResult{}, errors.New("timed out while enqueuing command")
	}
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-s.done:
		return storeResult{}, errors.New("memory store is closed")
	}
}

// Connector hands database/sql connections that all share one store.
type Connector struct {
	store *store
}

// NewConnector loads the snapshot at path, if any, and starts the store. An empty path
// keeps everything in memory. Pass the connector to sql.OpenDB; closing the DB closes it.
// Background snapshot failures are reported to logger, which may be nil.
func NewConnector(path string, logger *zap.Logger) (*Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := newStore(path, logger)
	if err != nil {
		return nil, err
	}
	return &Connector{store: s}, nil
}

// Connect creates a connection that forwards calls to the shared store.
func (c *Connector) Connect(context.Context) (driver.Conn, error) {
	return &conn{store: c.store}, nil
}

// Driver satisfies driver.Connector.
func (c *Connector) Driver() driver.Driver { return &Driver{store: c.store} }

// Close stops the store and flushes the final snapshot.
func (c *Connector) Close() error { return c.store.close() }

// Driver wires the store into the database/sql world.
type Driver struct {
	store *store
}

// Open creates a connection that forwards calls to the shared store.
func (d *Driver) Open(string) (driver.Conn, error) {
	if d.store == nil {
		return nil, errors.New("memory driver store is not initialized")
	}
	return &conn{store: d.store}, nil
}

// conn represents a lightweight connection object; every operation still travels through channels.
type conn struct {
	store *store
}

// Prepare builds a statement object for the small set of supported queries.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	trimmed := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	switch {
	case strings.HasPrefix(trimmed, "insert into world_state"):
		return &stmt{store: c.store, query: "put"}, nil
	case strings.HasPrefix(trimmed, "select value from world_state"):
		return &stmt{store: c.store, query: "get"}, nil
	case strings.HasPrefix(trimmed, "select key, value from world_state"):
		return &stmt{store: c.store, query: "scan"}, nil
	case strings.HasPrefix(trimmed, "delete from world_state"):
		return &stmt{store: c.store, query: "delete"}, nil
	case strings.HasPrefix(trimmed, "create table"), strings.HasPrefix(trimmed, "pragma"):
		return &stmt{store: c.store, query: "noop"}, nil
	default:
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
}

// Close is a no-op because the shared store owns the lifecycle.
func (c *conn) Close() error { return nil }

// Begin is not implemented because every statement is applied atomically on its own.
func (c *conn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions are not supported by the memory driver")
}

// stmt forwards Exec and Query to the store with the data shaped for each case.
type stmt struct {
	store *store
	query string
}

// Close is a no-op since statements do not maintain resources in this simple driver.
func (s *stmt) Close() error { return nil }

// NumInput matches the driver.Stmt contract; -1 allows database/sql to accept any argument count.
func (s *stmt) NumInput() int { return -1 }

// Exec handles the mutation statements supported by the driver.
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	if s.query == "noop" {
		// Schema bootstrap statements do not touch the in-memory store, so we short-circuit them.
		return execResult{}, nil
	}
	cmd := storeCommand{action: s.query}
	switch s.query {
	case "put":
		if len(args) < 3 {
			return nil, fmt.Errorf("expected 3 arguments, got %d", len(args))
		}
		cmd.namespace, cmd.key, cmd.value = toString(args[0]), toString(args[1]), toBytes(args[2])
	case "delete":
		if len(args) < 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		cmd.namespace, cmd.key = toString(args[0]), toString(args[1])
	default:
		return nil, fmt.Errorf("unsupported exec action %s", s.query)
	}
	res, err := s.store.enqueue(context.Background(), cmd)
	if err != nil {
		return nil, err
	}
	return execResult{affected: res.affected}, nil
}

// Query fetches the stored records and converts them into driver.Rows.
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	cmd := storeCommand{action: s.query}
	switch s.query {
	case "get":
		if len(args) < 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		cmd.namespace, cmd.key = toString(args[0]), toString(args[1])
	case "scan":
		if len(args) < 2 {
			return nil, fmt.Errorf("expected at least 2 arguments, got %d", len(args))
		}
		cmd.namespace, cmd.key = toString(args[0]), toString(args[1])
		if len(args) > 2 {
			cmd.end = toString(args[2])
		}
	default:
		return nil, errors.New("query only supports get and scan")
	}
	res, err := s.store.enqueue(context.Background(), cmd)
	if err != nil {
		return nil, err
	}
	if s.query == "get" {
		if !res.found {
			return &rows{kind: "value"}, nil
		}
		return &rows{kind: "value", entries: []entry{{value: res.value}}}, nil
	}
	return &rows{kind: "entries", entries: res.entries}, nil
}

// execResult fulfills the driver.Result interface.
type execResult struct {
	affected int64
}

func (r execResult) LastInsertId() (int64, error) {
	return 0, errors.New("no insert ids in world_state")
}
func (r execResult) RowsAffected() (int64, error) { return r.affected, nil }

// rows iterates through the stored records while serving Columns and Next calls.
type rows struct {
	kind    string
	entries []entry
	index   int
}

// Columns aligns with the SELECT projection used by the SQL store.
func (r *rows) Columns() []string {
	if r.kind == "value" {
		return []string{"value"}
	}
	return []string{"key", "value"}
}

// Close is a no-op for the lightweight row iterator.
func (r *rows) Close() error { return nil }

// Next moves through the records and writes the column data into the provided slice.
func (r *rows) Next(dest []driver.Value) error {
	if r.index >= len(r.entries) {
		return io.EOF
	}
	record := r.entries[r.index]
	r.index++
	if r.kind == "value" {
		dest[0] = record.value
		return nil
	}
	dest[0] = record.key
	dest[1] = record.value
	return nil
}

// toString converts driver.Value into a usable string.
func toString(value driver.Value) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toBytes converts driver.Value into an owned byte slice.
func toBytes(value driver.Value) []byte {
	switch v := value.(type) {
	case []byte:
		return cloneBytes(v)
	case string:
		return []byte(v)
	case nil:
		return nil
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}

func cloneBytes(src []byte) []byte {
	if src == nil {
		return nil
	}
	out := make([]byte, len(src))
	copy(out, src)
	return out
}

// readSnapshot loads the persisted JSON file if it exists.
func readSnapshot(path string) (*snapshot, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// writeSnapshot persists the current state to disk.
func writeSnapshot(path string, snap snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(temp, path)
}
