package tundra_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/internal/conn"
	"github.com/kvpipe/kvpipe/internal/freeze"
	"github.com/kvpipe/kvpipe/tundra"
	"github.com/kvpipe/kvpipe/tundra/datastore/memdatastore"
)

var _ = Describe("Worker.Handle", func() {
	It("mirrors a key's DUMP payload into the datastore", func() {
		pool := newPipePool(GinkgoTB())
		serveScript(GinkgoTB(), pool.server, []string{"$5\r\nhello\r\n"})

		ds := memdatastore.New()
		w := tundra.NewWorker(func(body func(s *kvpipe.Session) error) (any, error) {
			return kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, body)
		}, ds)

		result := w.Handle(context.Background(), tundra.QueueMessage{Payload: []byte("mykey")})
		Expect(result.Kind).To(Equal(tundra.ResultSuccess))

		blob, err := ds.Fetch(context.Background(), "mykey")
		Expect(err).NotTo(HaveOccurred())
		Expect(blob).To(Equal([]byte("hello")))
	})

	It("treats a vanished key's null DUMP as success", func() {
		pool := newPipePool(GinkgoTB())
		serveScript(GinkgoTB(), pool.server, []string{"$-1\r\n"})

		ds := memdatastore.New()
		w := tundra.NewWorker(func(body func(s *kvpipe.Session) error) (any, error) {
			return kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, body)
		}, ds)

		result := w.Handle(context.Background(), tundra.QueueMessage{Payload: []byte("gone")})
		Expect(result.Kind).To(Equal(tundra.ResultSuccess))

		_, err := ds.Fetch(context.Background(), "gone")
		Expect(err).To(HaveOccurred())
	})

	It("freezes the DUMP payload before storing it when a Freezer is configured", func() {
		pool := newPipePool(GinkgoTB())
		serveScript(GinkgoTB(), pool.server, []string{"$5\r\nhello\r\n"})

		ds := memdatastore.New()
		w := tundra.NewWorker(func(body func(s *kvpipe.Session) error) (any, error) {
			return kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, body)
		}, ds)
		w.Freezer = freeze.GobFreezer{}

		result := w.Handle(context.Background(), tundra.QueueMessage{Payload: []byte("mykey")})
		Expect(result.Kind).To(Equal(tundra.ResultSuccess))

		stored, err := ds.Fetch(context.Background(), "mykey")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).NotTo(Equal([]byte("hello")))

		thawed, err := (freeze.GobFreezer{}).Thaw(stored, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(thawed).To(Equal([]byte("hello")))
	})
})
