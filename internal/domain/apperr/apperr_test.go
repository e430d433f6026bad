package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/pinnacle/internal/domain/apperr"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKinds(t *testing.T) {
	Convey("Given errors built with the kind helpers", t, func() {
		cause := errors.New("disk full")
		render := apperr.WrapKind("quotes.create", apperr.ErrRender, cause)
		missing := apperr.NewKind("quotes.revise", apperr.ErrNotFound)
		invalid := apperr.Validation("leads.ingest", "missing %s", "email")

		Convey("Then errors.Is sees both the kind and the cause", func() {
			So(errors.Is(render, apperr.ErrRender), ShouldBeTrue)
			So(errors.Is(render, cause), ShouldBeTrue)
			So(errors.Is(render, apperr.ErrNotFound), ShouldBeFalse)
		})

		Convey("Then wrapping further keeps the kind reachable", func() {
			outer := fmt.Errorf("handler: %w", missing)
			So(apperr.KindOf(outer), ShouldEqual, apperr.ErrNotFound)
			So(apperr.KindOf(errors.New("plain")), ShouldBeNil)
		})

		Convey("Then messages are readable", func() {
			So(render.Error(), ShouldEqual, "quotes.create: render failed: disk full")
			So(missing.Error(), ShouldEqual, "quotes.revise: not found")
			So(apperr.Message(invalid), ShouldEqual, "missing email")
			So(apperr.Message(missing), ShouldEqual, "not found")
			So(apperr.Message(nil), ShouldEqual, "")
		})
	})
}
