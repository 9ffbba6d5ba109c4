// Package message defines the control-protocol message shapes of
// spec.md §6: classes, identifiers, the attribute-dictionary envelope, and
// the pixel/error/file-resolution payloads. The transport that actually
// moves these bytes between backend and front-end is an external
// collaborator (spec.md §1); this package only defines what is sent.
package message

// Class is one of the message classes spec.md §6.1 lists.
type Class string

const (
	ClassBackendControl Class = "BackendControl"
	ClassSceneControl   Class = "SceneControl"
	ClassViewControl    Class = "ViewControl"
	ClassSceneOutput    Class = "SceneOutput"
	ClassViewOutput     Class = "ViewOutput"
	ClassViewImage      Class = "ViewImage"
	ClassFileAccess     Class = "FileAccess"
)

// Ident is one of the message identifiers spec.md §6.1 lists (partial).
type Ident string

const (
	IdentCreateScene  Ident = "CreateScene"
	IdentCloseScene   Ident = "CloseScene"
	IdentCreateView   Ident = "CreateView"
	IdentCloseView    Ident = "CloseView"
	IdentStartParser  Ident = "StartParser"
	IdentStopParser   Ident = "StopParser"
	IdentPauseParser  Ident = "PauseParser"
	IdentResumeParser Ident = "ResumeParser"
	IdentStartRender  Ident = "StartRender"
	IdentStopRender   Ident = "StopRender"
	IdentPauseRender  Ident = "PauseRender"
	IdentResumeRender Ident = "ResumeRender"

	IdentDone               Ident = "Done"
	IdentFailed             Ident = "Failed"
	IdentError              Ident = "Error"
	IdentFatalError         Ident = "FatalError"
	IdentWarning            Ident = "Warning"
	IdentProgress           Ident = "Progress"
	IdentParserStatistics   Ident = "ParserStatistics"
	IdentRenderStatistics   Ident = "RenderStatistics"
	IdentPixelBlockSet      Ident = "PixelBlockSet"
	IdentPixelSet           Ident = "PixelSet"
	IdentReadFile           Ident = "ReadFile"
	IdentFindFile           Ident = "FindFile"
	IdentCreatedFile        Ident = "CreatedFile"
)

// Address identifies a message endpoint (a connected front-end, a specific
// scene/view control thread, ...).
type Address string

// Message is the generic envelope every control-protocol message uses: a
// class, an identifier, source/destination addresses, and an attribute
// dictionary (spec.md §6.1).
type Message struct {
	Class       Class
	Ident       Ident
	Source      Address
	Destination Address
	Attributes  map[string]any
}

// Done builds a success reply carrying result attributes.
func Done(class Class, src, dst Address, result map[string]any) Message {
	return Message{Class: class, Ident: IdentDone, Source: src, Destination: dst, Attributes: result}
}

// Failed builds a failure reply carrying an error number and English text
// (spec.md §6.1 "Each reply carries either Done ... or Failed with
// ErrorNumber and EnglishText").
func Failed(class Class, src, dst Address, errorNumber int, englishText string) Message {
	return Message{
		Class: class, Ident: IdentFailed, Source: src, Destination: dst,
		Attributes: map[string]any{"ErrorNumber": errorNumber, "EnglishText": englishText},
	}
}
