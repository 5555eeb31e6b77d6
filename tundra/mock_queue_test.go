package tundra_test

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/kvpipe/kvpipe/tundra"
)

// MockQueue is a hand-written double for tundra.Queue in the shape
// mockgen would generate, used by the ginkgo specs in this package
// rather than a generated file since the interface is small enough to
// maintain by hand.
type MockQueue struct {
	ctrl     *gomock.Controller
	recorder *MockQueueMockRecorder
}

type MockQueueMockRecorder struct {
	mock *MockQueue
}

func NewMockQueue(ctrl *gomock.Controller) *MockQueue {
	m := &MockQueue{ctrl: ctrl}
	m.recorder = &MockQueueMockRecorder{mock: m}
	return m
}

func (m *MockQueue) EXPECT() *MockQueueMockRecorder { return m.recorder }

func (m *MockQueue) Enqueue(ctx context.Context, qname string, msg []byte, mid string, allowLockedDupe bool) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Enqueue", ctx, qname, msg, mid, allowLockedDupe)
	err, _ := ret[0].(error)
	return err
}

func (mr *MockQueueMockRecorder) Enqueue(ctx, qname, msg, mid, allowLockedDupe any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Enqueue", reflect.TypeOf((*MockQueue)(nil).Enqueue), ctx, qname, msg, mid, allowLockedDupe)
}

func (m *MockQueue) Worker(ctx context.Context, qname string, opts tundra.WorkerOptions, handler tundra.Handler) (tundra.Consumer, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Worker", ctx, qname, opts, handler)
	c, _ := ret[0].(tundra.Consumer)
	err, _ := ret[1].(error)
	return c, err
}

func (mr *MockQueueMockRecorder) Worker(ctx, qname, opts, handler any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Worker", reflect.TypeOf((*MockQueue)(nil).Worker), ctx, qname, opts, handler)
}
