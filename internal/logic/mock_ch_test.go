package logic

import (
	"context"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

type MockConn struct {
	driver.Conn
	ExecQueries []string
	QueryArgs   []interface{}
	Batch       *MockBatch
	PrepareErr  error
	Rows        [][]interface{}
}

func (m *MockConn) Exec(ctx context.Context, query string, args ...interface{}) error {
	m.ExecQueries = append(m.ExecQueries, query)
	return nil
}

func (m *MockConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.PrepareErr != nil {
		return nil, m.PrepareErr
	}
	if m.Batch == nil {
		m.Batch = &MockBatch{}
	}
	return m.Batch, nil
}

func (m *MockConn) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	m.QueryArgs = args
	return &MockRows{rows: m.Rows}, nil
}

type MockBatch struct {
	driver.Batch
	Appended  [][]interface{}
	AppendErr error
	Sent      bool
	Aborted   bool
}

func (b *MockBatch) Append(v ...interface{}) error {
	if b.AppendErr != nil {
		return b.AppendErr
	}
	b.Appended = append(b.Appended, v)
	return nil
}

func (b *MockBatch) Send() error {
	b.Sent = true
	return nil
}

func (b *MockBatch) Abort() error {
	b.Aborted = true
	return nil
}

type MockRows struct {
	driver.Rows
	rows [][]interface{}
	idx  int
}

func (m *MockRows) Next() bool {
	m.idx++
	return m.idx <= len(m.rows)
}

func (m *MockRows) Scan(dest ...interface{}) error {
	for i, v := range m.rows[m.idx-1] {
		assign(dest[i], v)
	}
	return nil
}

func (m *MockRows) Close() error {
	return nil
}

func (m *MockRows) Err() error {
	return nil
}

func assign(dest interface{}, val interface{}) {
	// Simple reflection to assign value to pointer
	v := reflect.ValueOf(dest).Elem()
	v.Set(reflect.ValueOf(val))
}
