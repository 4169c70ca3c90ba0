package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/narrator/pkg/cliui"
)

var _ = Describe("cliui", func() {
	It("formats short and long durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("masks secrets", func() {
		Expect(cliui.MaskSecret("sk-abcdef1234")).To(Equal("****1234"))
		Expect(cliui.MaskSecret("abc")).To(Equal("****"))
	})

	It("writes only the final step line to a non-terminal", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "asking", func() error { return errors.New("boom") })
		Expect(err).To(MatchError("boom"))
		Expect(buf.String()).To(ContainSubstring("asking"))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
		Expect(bytes.Count(buf.Bytes(), []byte("\n"))).To(Equal(1))
		Expect(cliui.IsTerminal(&buf)).To(BeFalse())
	})
})
