package model_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/pinnacle/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestItemUnmarshal(t *testing.T) {
	Convey("Given quote items on the wire", t, func() {
		Convey("When they are positional pairs", func() {
			var items []model.Item
			err := json.Unmarshal([]byte(`[["Widget", 19.99], ["Gadget", 5]]`), &items)

			Convey("Then names and exact decimal prices are decoded", func() {
				So(err, ShouldBeNil)
				So(items, ShouldHaveLength, 2)
				So(items[0].Name, ShouldEqual, "Widget")
				So(items[0].Price.String(), ShouldEqual, "19.99")
				So(items[1].Price.StringFixed(2), ShouldEqual, "5.00")
			})
		})

		Convey("When they are objects with string prices", func() {
			var it model.Item
			err := json.Unmarshal([]byte(`{"name": "Gizmo", "price": "3.455"}`), &it)

			So(err, ShouldBeNil)
			So(it.Name, ShouldEqual, "Gizmo")
			So(it.Price.String(), ShouldEqual, "3.455")
		})

		Convey("When a pair has the wrong arity", func() {
			var it model.Item
			err := json.Unmarshal([]byte(`["Widget"]`), &it)
			So(errors.Is(err, model.ErrMalformedItem), ShouldBeTrue)
		})

		Convey("When an object has no price", func() {
			var it model.Item
			err := json.Unmarshal([]byte(`{"name": "Widget"}`), &it)
			So(errors.Is(err, model.ErrMalformedItem), ShouldBeTrue)
		})

		Convey("When the price is not numeric", func() {
			var it model.Item
			err := json.Unmarshal([]byte(`["Widget", "cheap"]`), &it)
			So(errors.Is(err, model.ErrMalformedItem), ShouldBeTrue)
		})
	})
}

func TestLeadFromProperties(t *testing.T) {
	Convey("Given an open property map", t, func() {
		props := map[string]any{
			"first_name": " Arnold ",
			"last_name":  "Masutha",
			"email":      "arnold@example.com",
			"company":    "Pinnacle",
			"age":        42.0,
		}
		lead := model.LeadFromProperties(props)

		Convey("Then required attributes are extracted and trimmed", func() {
			So(lead.FirstName, ShouldEqual, "Arnold")
			So(lead.LastName, ShouldEqual, "Masutha")
			So(lead.Email, ShouldEqual, "arnold@example.com")
			So(lead.Properties["company"], ShouldEqual, "Pinnacle")
		})

		Convey("Then the property map is a copy", func() {
			props["company"] = "Other"
			So(lead.Properties["company"], ShouldEqual, "Pinnacle")
		})

		Convey("Then non-string required values are treated as missing", func() {
			l := model.LeadFromProperties(map[string]any{"email": 7.0})
			So(l.Email, ShouldEqual, "")
		})
	})

	Convey("Given a quote", t, func() {
		q := model.Quote{ID: "q", Items: []model.Item{{Name: "a"}}}
		c := q.Clone()
		c.Items[0].Name = "b"
		So(q.Items[0].Name, ShouldEqual, "a")
	})
}
