package tundra_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/internal/conn"
	"github.com/kvpipe/kvpipe/tundra"
	"github.com/kvpipe/kvpipe/tundra/datastore/memdatastore"
)

var _ = Describe("Coordinator.DirtyKeys", func() {
	var ctrl *gomock.Controller
	var mq *MockQueue

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		mq = NewMockQueue(ctrl)
	})

	AfterEach(func() {
		ctrl.Finish()
	})

	It("extends TTL and enqueues every key that exists", func() {
		pool := newPipePool(GinkgoTB())
		serveScript(GinkgoTB(), pool.server, []string{"*2\r\n:1\r\n:1\r\n"})

		mq.EXPECT().Enqueue(gomock.Any(), tundra.QueueName, gomock.Any(), "k1", true).Return(nil)
		mq.EXPECT().Enqueue(gomock.Any(), tundra.QueueName, gomock.Any(), "k2", true).Return(nil)

		co, err := tundra.NewCoordinator(memdatastore.New(), mq)
		Expect(err).NotTo(HaveOccurred())

		_, err = kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, func(s *kvpipe.Session) error {
			return co.DirtyKeys(context.Background(), s, []string{"k1", "k2"})
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails without enqueueing anything when a key is missing", func() {
		pool := newPipePool(GinkgoTB())
		serveScript(GinkgoTB(), pool.server, []string{"*1\r\n:0\r\n"})

		co, err := tundra.NewCoordinator(memdatastore.New(), mq)
		Expect(err).NotTo(HaveOccurred())

		_, err = kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, func(s *kvpipe.Session) error {
			return co.DirtyKeys(context.Background(), s, []string{"gone"})
		})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Coordinator.EnsureKeys", func() {
	It("skips the restore round trip when every key already exists", func() {
		pool := newPipePool(GinkgoTB())
		serveScript(GinkgoTB(), pool.server, []string{"*1\r\n:1\r\n"})

		ctrl := gomock.NewController(GinkgoT())
		defer ctrl.Finish()
		mq := NewMockQueue(ctrl)

		co, err := tundra.NewCoordinator(memdatastore.New(), mq)
		Expect(err).NotTo(HaveOccurred())

		_, err = kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, func(s *kvpipe.Session) error {
			return co.EnsureKeys(context.Background(), s, []string{"present"})
		})
		Expect(err).NotTo(HaveOccurred())
	})
})
