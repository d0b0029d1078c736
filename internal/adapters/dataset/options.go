package dataset

// Option applies a configuration option to the readers.
type Option func(*options)

type options struct {
	dateColumn  string
	valueColumn string
	layouts     []string
	comma       rune
}

func newOptions(opts []Option) options {
	o := options{
		dateColumn:  "Date",
		valueColumn: "Price",
		layouts:     defaultLayouts,
		comma:       ',',
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDateColumn sets the header of the date column.
func WithDateColumn(name string) Option {
	return func(o *options) {
		if name != "" {
			o.dateColumn = name
		}
	}
}

// WithValueColumn sets the header of the price column.
func WithValueColumn(name string) Option {
	return func(o *options) {
		if name != "" {
			o.valueColumn = name
		}
	}
}

// WithLayouts replaces the accepted date layouts, tried in order.
func WithLayouts(layouts ...string) Option {
	return func(o *options) {
		if len(layouts) > 0 {
			o.layouts = layouts
		}
	}
}

// WithComma sets the field delimiter.
func WithComma(r rune) Option {
	return func(o *options) {
		if r != 0 {
			o.comma = r
		}
	}
}
