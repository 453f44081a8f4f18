package event

// Names of the well known composite types present in every registry created by
// NewRegistry.
const (
	TypeTickspan    = `jdk.type.Tickspan`
	TypeTicks       = `jdk.type.Ticks`
	TypeThreadGroup = `jdk.types.ThreadGroup`
	TypeThread      = `java.lang.Thread`
	TypeSymbol      = `jdk.types.Symbol`
	TypeClass       = `java.lang.Class`
	TypeClassLoader = `jdk.type.ClassLoader`
	TypeModule      = `jdk.types.Module`
	TypePackage     = `jdk.types.Package`
	TypeMethod      = `jdk.types.Method`
	TypeFrameType   = `jdk.types.FrameType`
	TypeStackFrame  = `jdk.types.StackFrame`
	TypeStackTrace  = `jdk.types.StackTrace`
)

// Names of the builtin annotation types, each holds a single string value.
const (
	TypeLabel       = `jdk.jfr.Label`
	TypeDescription = `jdk.jfr.Description`
	TypeTimestamp   = `jdk.jfr.Timestamp`
	TypeTimespan    = `jdk.jfr.Timespan`
	TypeUnsigned    = `jdk.jfr.Unsigned`
)

// TimestampTicks is the Timestamp value of fields holding chunk ticks, such as
// the implicit startTime of events.
const TimestampTicks = `TICKS`

var builtinAnnotations = []string{
	TypeLabel, TypeDescription, TypeTimestamp, TypeTimespan, TypeUnsigned,
}

// Implicit fields of event types.
const (
	FieldStackTrace  = `stackTrace`
	FieldEventThread = `eventThread`
	FieldStartTime   = `startTime`
)

// fieldSpec is a field of a builtin type, referencing its type by name.
type fieldSpec struct {
	name, typ string
	array     bool
}

// builtinDefs are registered in order, so each type may only reference types
// listed before it, itself, or a name in builtinForward.
var builtinDefs = []struct {
	name   string
	fields []fieldSpec
}{
	{TypeTickspan, []fieldSpec{{`tickSpan`, `long`, false}}},
	{TypeTicks, []fieldSpec{{`ticks`, `long`, false}}},
	{TypeThreadGroup, []fieldSpec{
		{`parent`, TypeThreadGroup, false},
		{`name`, `java.lang.String`, false},
	}},
	{TypeThread, []fieldSpec{
		{`osName`, `java.lang.String`, false},
		{`osThreadId`, `long`, false},
		{`javaName`, `java.lang.String`, false},
		{`group`, TypeThreadGroup, false},
	}},
	{TypeSymbol, []fieldSpec{{`string`, `java.lang.String`, false}}},
	{TypeClassLoader, []fieldSpec{
		{`type`, TypeClass, false},
		{`name`, TypeSymbol, false},
	}},
	{TypeModule, []fieldSpec{
		{`name`, TypeSymbol, false},
		{`version`, TypeSymbol, false},
		{`location`, TypeSymbol, false},
		{`classLoader`, TypeClassLoader, false},
	}},
	{TypePackage, []fieldSpec{
		{`name`, TypeSymbol, false},
		{`module`, TypeModule, false},
		{`exported`, `boolean`, false},
	}},
	{TypeClass, []fieldSpec{
		{`classLoader`, TypeClassLoader, false},
		{`name`, TypeSymbol, false},
		{`package`, TypePackage, false},
		{`modifiers`, `int`, false},
		{`hidden`, `boolean`, false},
	}},
	{TypeMethod, []fieldSpec{
		{`type`, TypeClass, false},
		{`name`, TypeSymbol, false},
		{`descriptor`, TypeSymbol, false},
		{`modifiers`, `int`, false},
		{`hidden`, `boolean`, false},
	}},
	{TypeFrameType, []fieldSpec{{`description`, `java.lang.String`, false}}},
	{TypeStackFrame, []fieldSpec{
		{`method`, TypeMethod, false},
		{`lineNumber`, `int`, false},
		{`bytecodeIndex`, `int`, false},
		{`type`, TypeFrameType, false},
	}},
	{TypeStackTrace, []fieldSpec{
		{`truncated`, `boolean`, false},
		{`frames`, TypeStackFrame, true},
	}},
}

// java.lang.Class and its class loader reference each other.
var builtinForward = []string{TypeClass}

func (r *Registry) registerBuiltins() {
	for k := Byte; k < kindCount; k++ {
		r.add(&Type{
			id:      r.next,
			name:    kindNames[k],
			kind:    k,
			builtin: true,
			defined: true,
		})
	}
	for _, name := range builtinForward {
		if _, err := r.Declare(name); err != nil {
			panic(err)
		}
	}
	for _, def := range builtinDefs {
		fields := def.fields
		fn := func(b *Builder) error {
			for _, f := range fields {
				if err := b.AddFieldByName(f.name, f.typ, f.array); err != nil {
					return err
				}
			}
			return nil
		}
		cfg := typeConfig{pooled: true, builtin: true}
		if _, err := r.register(def.name, fn, cfg); err != nil {
			panic(err)
		}
	}
	for _, name := range builtinAnnotations {
		fn := func(b *Builder) error {
			return b.AddFieldByName(`value`, `java.lang.String`, false)
		}
		cfg := typeConfig{super: AnnotationSuper, builtin: true}
		if _, err := r.register(name, fn, cfg); err != nil {
			panic(err)
		}
	}
}
