package subindex_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/subindex"
	"github.com/reactree/reactree/pkg/value"
)

func v(x interface{}) *value.Value {
	sanitized, err := value.Sanitize(x)
	Expect(err).NotTo(HaveOccurred())
	return sanitized
}

var _ = Describe("Index", func() {
	var ix *subindex.Index

	BeforeEach(func() {
		ix = subindex.New()
	})

	Describe("dispatch monotonicity", func() {
		It("delivers the changed path's new value alongside the unchanged path's current value", func() {
			ix.Update(v(map[string]interface{}{"a": 1, "b": "stable"}))
			sub := ix.Subscribe([]path.Path{path.Parse("/a", nil), path.Parse("/b", nil)}, nil, false)

			dirty := ix.Update(v(map[string]interface{}{"a": 2, "b": "stable"}))

			Expect(dirty).To(ContainElement(sub))
			tuple := sub.TakeDelivery()
			Expect(tuple[0].Int()).To(Equal(int64(2)))
			Expect(tuple[1].Str()).To(Equal("stable"))
		})

		It("does not redeliver once a subscription has taken delivery and nothing further changed", func() {
			ix.Update(v(map[string]interface{}{"a": 1}))
			sub := ix.Subscribe([]path.Path{path.Parse("/a", nil)}, nil, true)
			Expect(sub.Dirty()).To(BeTrue())
			sub.TakeDelivery()
			Expect(sub.Dirty()).To(BeFalse())

			dirty := ix.Update(v(map[string]interface{}{"a": 1}))
			Expect(dirty).NotTo(ContainElement(sub))
		})

		It("reports every changed path as part of one dispatch, not one per path", func() {
			ix.Update(v(map[string]interface{}{"a": 1, "b": 1}))
			sub := ix.Subscribe([]path.Path{path.Parse("/a", nil), path.Parse("/b", nil)}, nil, false)

			dirty := ix.Update(v(map[string]interface{}{"a": 2, "b": 2}))

			count := 0
			for _, d := range dirty {
				if d == sub {
					count++
				}
			}
			Expect(count).To(Equal(1))
		})
	})

	Describe("unsubscribe", func() {
		It("stops delivering once a subscription is withdrawn", func() {
			ix.Update(v(map[string]interface{}{"a": 1}))
			sub := ix.Subscribe([]path.Path{path.Parse("/a", nil)}, nil, false)
			ix.Unsubscribe(sub)

			dirty := ix.Update(v(map[string]interface{}{"a": 2}))
			Expect(dirty).NotTo(ContainElement(sub))
			Expect(sub.Disabled()).To(BeTrue())
		})

		It("garbage collects the directory chain once its last subscriber leaves, rebuilding cleanly on resubscribe", func() {
			ix.Update(v(map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 1}}}))
			sub := ix.Subscribe([]path.Path{path.Parse("/a/b/c", nil)}, nil, false)
			ix.Unsubscribe(sub)

			second := ix.Subscribe([]path.Path{path.Parse("/a/b/c", nil)}, nil, true)
			dirty := ix.Update(v(map[string]interface{}{"a": map[string]interface{}{"b": map[string]interface{}{"c": 2}}}))

			Expect(dirty).To(ContainElement(second))
			Expect(second.TakeDelivery()[0].Int()).To(Equal(int64(2)))
		})
	})

	Describe("subtree churn", func() {
		It("tolerates a subtree disappearing and reappearing without leaking stale state", func() {
			ix.Update(v(map[string]interface{}{"a": map[string]interface{}{"x": 1}}))
			sub := ix.Subscribe([]path.Path{path.Parse("/a/x", nil)}, nil, true)
			sub.TakeDelivery()

			ix.Update(v(map[string]interface{}{}))
			dirty := ix.Update(v(map[string]interface{}{"a": map[string]interface{}{"x": 2}}))

			Expect(dirty).To(ContainElement(sub))
			Expect(sub.TakeDelivery()[0].Int()).To(Equal(int64(2)))
		})
	})
})
