package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/narrator/pkg/eventstream"
	"github.com/papercomputeco/narrator/pkg/eventstream/nop"
)

var _ eventstream.Publisher = (*nop.Publisher)(nil)

var _ = Describe("Publisher", func() {
	It("creates a non-nil publisher", func() {
		p := nop.NewPublisher()
		Expect(p).NotTo(BeNil())
	})

	It("returns ErrNilGenerationEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishGeneration(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilGenerationEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishGeneration(context.Background(), eventstream.NewGenerationEvent())
		Expect(err).NotTo(HaveOccurred())
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
