package pipeline

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/leapstack-labs/leapdq/internal/dataset"
	"github.com/leapstack-labs/leapdq/internal/stage"
)

var columnListType = reflect.TypeOf(dataset.ColumnList{})

// columnListHook accepts a name, a pipe delimited string or a list wherever
// a ColumnList is expected.
func columnListHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != columnListType {
		return data, nil
	}
	return dataset.ParseColumnList(data)
}

func decode(input, target any, tag string, strict bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tag,
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			columnListHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result: target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// StepDecoder returns the decoder handed to a stage runner. Targets use
// mapstructure tags; keys the target does not know are ignored so nested
// blocks such as source_dataset can sit next to the configs.
func StepDecoder(args map[string]any) stage.Decoder {
	return func(target any) error {
		return decode(args, target, "mapstructure", false)
	}
}

// DecodeInput decodes an input_dataset shaped block.
func DecodeInput(v any) (InputDataset, error) {
	var in InputDataset
	if v == nil {
		return in, nil
	}
	err := decode(v, &in, "koanf", true)
	return in, err
}

func decodeLocation(v any) (*Location, error) {
	var loc Location
	if err := decode(v, &loc, "koanf", true); err != nil {
		return nil, err
	}
	return &loc, nil
}
