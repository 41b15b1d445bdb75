package validation_test

import (
	"fmt"
	"strings"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/core/common/validation"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func fieldsOf(err *internal.AppError) []string {
	details, ok := err.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())
	fields := make([]string, 0, len(details.Errors))
	for _, e := range details.Errors {
		fields = append(fields, e.Field)
	}
	return fields
}

var _ = Describe("ValidationBuilder", func() {
	It("passes when every field is valid", func() {
		v := validation.NewValidator()
		v.Field("razorpay_payment_id", "pay_29QQoUBi66xm2f").Required().GatewayID("pay")
		v.Field("password", "correct horse battery").Required().MinLength(12).MaxLength(72)

		Expect(v.Validate()).To(BeNil())
	})

	It("collects every failing field in one error", func() {
		v := validation.NewValidator()
		v.Field("local_order_ref", "").Required()
		v.Field("razorpay_order_id", "pay_29QQoUBi66xm2f").GatewayID("order")
		v.Field("description", strings.Repeat("d", 300)).MaxLength(255)

		err := v.Validate()

		Expect(err).NotTo(BeNil())
		Expect(err.Code).To(Equal(internal.ErrCodeValidationFailed))
		Expect(fieldsOf(err)).To(ConsistOf("local_order_ref", "razorpay_order_id", "description"))
	})

	It("leaves optional identifiers alone when empty", func() {
		v := validation.NewValidator()
		v.Field("razorpay_order_id", "").GatewayID("order")

		Expect(v.Validate()).To(BeNil())
	})

	It("treats a nil pointer as missing", func() {
		var receipt *string
		v := validation.NewValidator()
		v.Field("receipt", receipt).Required()

		Expect(v.Validate()).NotTo(BeNil())
	})
})

var _ = Describe("ValidateNotes", func() {
	It("accepts up to 15 entries", func() {
		notes := map[string]string{}
		for i := 0; i < 15; i++ {
			notes[fmt.Sprintf("k%d", i)] = "v"
		}

		Expect(validation.ValidateNotes(notes)).To(BeNil())
	})

	It("rejects a sixteenth entry", func() {
		notes := map[string]string{}
		for i := 0; i < 16; i++ {
			notes[fmt.Sprintf("k%d", i)] = "v"
		}

		Expect(validation.ValidateNotes(notes)).NotTo(BeNil())
	})

	It("rejects values longer than 256 characters", func() {
		err := validation.ValidateNotes(map[string]string{"address": strings.Repeat("a", 257)})

		Expect(err).NotTo(BeNil())
		Expect(fieldsOf(err)).To(ConsistOf("notes.address"))
	})
})

var _ = Describe("ValidateReceipt", func() {
	It("allows a missing receipt", func() {
		Expect(validation.ValidateReceipt(nil)).To(BeNil())
	})

	It("caps the receipt at 40 characters", func() {
		receipt := strings.Repeat("r", 41)
		Expect(validation.ValidateReceipt(&receipt)).NotTo(BeNil())
	})
})
