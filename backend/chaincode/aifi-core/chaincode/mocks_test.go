package chaincode

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// In-memory world state shared by every contract under test. Only the stub
// methods the contracts actually touch are overridden; anything else panics
// through the embedded nil interface, which is exactly what we want in a
// test.

const compositeKeySep = string(rune(0))

type mockStub struct {
	shim.ChaincodeStubInterface
	state  map[string][]byte
	events map[string][]byte
	txSeq  int
	now    int64
}

func newMockStub() *mockStub {
	return &mockStub{
		state:  map[string][]byte{},
		events: map[string][]byte{},
		now:    time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}
}

func (s *mockStub) GetState(key string) ([]byte, error)        { return s.state[key], nil }
func (s *mockStub) PutState(key string, value []byte) error    { s.state[key] = value; return nil }
func (s *mockStub) DelState(key string) error                  { delete(s.state, key); return nil }
func (s *mockStub) SetEvent(name string, payload []byte) error { s.events[name] = payload; return nil }

func (s *mockStub) GetTxID() string {
	s.txSeq++
	return fmt.Sprintf("mock-tx-%04d", s.txSeq)
}

func (s *mockStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(time.Unix(s.now, 0)), nil
}

func (s *mockStub) CreateCompositeKey(objectType string, attributes []string) (string, error) {
	key := compositeKeySep + objectType + compositeKeySep
	for _, attr := range attributes {
		key += attr + compositeKeySep
	}
	return key, nil
}

func (s *mockStub) GetStateByPartialCompositeKey(objectType string, attributes []string) (shim.StateQueryIteratorInterface, error) {
	prefix := compositeKeySep + objectType + compositeKeySep
	for _, attr := range attributes {
		prefix += attr + compositeKeySep
	}
	var keys []string
	for key := range s.state {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	results := make([]*queryresult.KV, len(keys))
	for i, key := range keys {
		results[i] = &queryresult.KV{Key: key, Value: s.state[key]}
	}
	return &mockIterator{results: results}, nil
}

// advance moves the transaction clock forward.
func (s *mockStub) advance(d time.Duration) {
	s.now += int64(d / time.Second)
}

type mockIterator struct {
	results []*queryresult.KV
	pos     int
}

func (it *mockIterator) HasNext() bool { return it.pos < len(it.results) }
func (it *mockIterator) Close() error  { return nil }

func (it *mockIterator) Next() (*queryresult.KV, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("iterator exhausted")
	}
	kv := it.results[it.pos]
	it.pos++
	return kv, nil
}

type mockIdentity struct {
	cid.ClientIdentity
	id string
}

func (m *mockIdentity) GetID() (string, error)    { return m.id, nil }
func (m *mockIdentity) GetMSPID() (string, error) { return "AIFiMSP", nil }

type mockContext struct {
	stub     *mockStub
	identity *mockIdentity
}

func (c *mockContext) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *mockContext) GetClientIdentity() cid.ClientIdentity { return c.identity }

// testCtx wraps a shared stub with a caller identity, so a test can act as
// different accounts against the same world state.
func testCtx(stub *mockStub, identity string) *mockContext {
	return &mockContext{stub: stub, identity: &mockIdentity{id: identity}}
}
