package codec

import (
	"errors"
	"testing"
)

func TestToHubString_Boolean(t *testing.T) {
	tests := []struct {
		name   string
		native any
		want   string
	}{
		{"int 1", 1, On},
		{"float 1.0", 1.0, On},
		{"string on", "on", On},
		{"string ON", "ON", On},
		{"string 1", "1", On},
		{"string 1.0", "1.0", On},
		{"bool true", true, On},
		{"string y", "y", On},
		{"string Y", "Y", On},
		{"uint8 1", uint8(1), On},
		{"int 0", 0, Off},
		{"int 2", 2, Off},
		{"bool false", false, Off},
		{"string off", "off", Off},
		{"string yes", "yes", Off},
		{"string True", "True", Off},
		{"string OFF", "OFF", Off},
		{"empty string", "", Off},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToHubString(PowerState, tt.native)
			if err != nil {
				t.Fatalf("ToHubString() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ToHubString(power_state, %#v) = %q, want %q", tt.native, got, tt.want)
			}
		})
	}
}

func TestToHubString_Decimal(t *testing.T) {
	tests := []struct {
		name    string
		native  any
		want    string
		wantErr bool
	}{
		{"int", 24, "24.0", false},
		{"float whole", 24.0, "24.0", false},
		{"float half", 23.5, "23.5", false},
		{"negative", -2.5, "-2.5", false},
		{"integer string", "22", "22.0", false},
		{"decimal string", "22.5", "22.5", false},
		{"garbage", "warm", "", true},
		{"unsupported type", struct{}{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToHubString(TargetTemperature, tt.native)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToHubString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrCoercion) {
					t.Errorf("error = %v, want ErrCoercion", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ToHubString(target_temperature, %#v) = %q, want %q", tt.native, got, tt.want)
			}
		})
	}
}

func TestToHubString_Enum(t *testing.T) {
	tests := []struct {
		name    string
		prop    Property
		native  any
		want    string
		wantErr bool
	}{
		{"typed mode", OperationalMode, ModeCool, "2.0", false},
		{"int ordinal", OperationalMode, 4, "4.0", false},
		{"numeric string", OperationalMode, "3", "3.0", false},
		{"decimal string", OperationalMode, "5.0", "5.0", false},
		{"name", OperationalMode, "heat", "4.0", false},
		{"name mixed case", OperationalMode, "Fan_Only", "5.0", false},
		{"fan name", FanSpeed, "silent", "20.0", false},
		{"fan typed", FanSpeed, FanAuto, "102.0", false},
		{"swing off ordinal zero", SwingMode, 0, "0.0", false},
		{"swing name", SwingMode, "BOTH", "15.0", false},
		{"unknown name", OperationalMode, "turbo", "", true},
		{"ordinal out of range", OperationalMode, 9, "", true},
		{"fan ordinal out of range", FanSpeed, "81", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToHubString(tt.prop, tt.native)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToHubString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ToHubString(%s, %#v) = %q, want %q", tt.prop, tt.native, got, tt.want)
			}
		})
	}
}

func TestToHubString_UnknownProperty(t *testing.T) {
	_, err := ToHubString("humidity", 40)
	if !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("error = %v, want ErrUnknownProperty", err)
	}
	_, err = ToDeviceValue("humidity", "40")
	if !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("error = %v, want ErrUnknownProperty", err)
	}
}

func TestUnsetRoundTrip(t *testing.T) {
	for _, p := range All() {
		hub, err := ToHubString(p, Unset)
		if err != nil || hub != Unset {
			t.Errorf("ToHubString(%s, NULL) = %q, %v", p, hub, err)
		}
		hub, err = ToHubString(p, nil)
		if err != nil || hub != Unset {
			t.Errorf("ToHubString(%s, nil) = %q, %v", p, hub, err)
		}
		native, err := ToDeviceValue(p, Unset)
		if err != nil || !IsUnset(native) {
			t.Errorf("ToDeviceValue(%s, NULL) = %#v, %v", p, native, err)
		}
	}
}

func TestToDeviceValue(t *testing.T) {
	tests := []struct {
		name    string
		prop    Property
		hub     string
		want    any
		wantErr bool
	}{
		{"ON", PowerState, "ON", true, false},
		{"OFF", PowerState, "OFF", false, false},
		{"lowercase on is false", EcoMode, "on", false, false},
		{"decimal", TargetTemperature, "23.0", 23.0, false},
		{"integer", TargetTemperature, "23", 23.0, false},
		{"decimal with unit", TargetTemperature, "21.5 °C", 21.5, false},
		{"bad decimal", TargetTemperature, "hot", nil, true},
		{"mode ordinal", OperationalMode, "2.0", ModeCool, false},
		{"mode name", OperationalMode, "DRY", ModeDry, false},
		{"fan ordinal", FanSpeed, "60", FanMedium, false},
		{"swing name", SwingMode, "horizontal", SwingHorizontal, false},
		{"bad mode", OperationalMode, "7.0", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDeviceValue(tt.prop, tt.hub)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToDeviceValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ToDeviceValue(%s, %q) = %#v, want %#v", tt.prop, tt.hub, got, tt.want)
			}
		})
	}
}

func TestEnumRoundTrip(t *testing.T) {
	for _, p := range All() {
		spec, _ := Lookup(p)
		if spec.Kind != KindEnum {
			continue
		}
		for _, m := range spec.Enum {
			native := spec.typedMember(m.Ordinal)
			hub, err := ToHubString(p, native)
			if err != nil {
				t.Fatalf("ToHubString(%s, %v) error = %v", p, native, err)
			}
			back, err := ToDeviceValue(p, hub)
			if err != nil {
				t.Fatalf("ToDeviceValue(%s, %q) error = %v", p, hub, err)
			}
			if back != native {
				t.Errorf("%s %s: round trip = %#v, want %#v", p, m.Name, back, native)
			}
		}
	}
}

func TestDecimalAlwaysHasPoint(t *testing.T) {
	for _, v := range []any{0, 16, 30, -5, 17.25, "19", uint16(40)} {
		got, err := ToHubString(IndoorTemperature, v)
		if err != nil {
			t.Fatalf("ToHubString(%v) error = %v", v, err)
		}
		found := false
		for _, r := range got {
			if r == '.' {
				found = true
			}
		}
		if !found {
			t.Errorf("ToHubString(%v) = %q, missing decimal point", v, got)
		}
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"NULL", "NULL"},
		{"23.5 °C", "23.5"},
		{"23.5°C", "23.5"},
		{"45 %", "45"},
		{"  ON  ", "ON"},
		{"19 Â", "19"},
		{"cool", "cool"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := Clean(tt.raw); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCatalogue(t *testing.T) {
	if got := len(ReadOnlyProperties()); got != 4 {
		t.Errorf("read-only count = %d, want 4", got)
	}
	if got := len(ReadWriteProperties()); got != 7 {
		t.Errorf("read-write count = %d, want 7", got)
	}
	if IsWritable(IndoorTemperature) {
		t.Error("indoor_temperature should not be writable")
	}
	if !IsWritable(SwingMode) {
		t.Error("swing_mode should be writable")
	}
	if IsWritable("unknown") {
		t.Error("unknown property should not be writable")
	}
}
