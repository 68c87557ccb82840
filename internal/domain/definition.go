package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// definition mirrors the quiz file format; structural rules live in the tags.
type definition struct {
	Type      string               `json:"type" validate:"oneof=lesson custom"`
	Title     string               `json:"title"`
	Module    string               `json:"module"`
	Subject   string               `json:"subject"`
	Lesson    string               `json:"lesson"`
	Tags      []string             `json:"tags"`
	Questions []questionDefinition `json:"questions" validate:"required,min=1,dive"`
}

type questionDefinition struct {
	SN       string `json:"sn" validate:"required"`
	Source   string `json:"source"`
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required,oneof=a b c d e f g"`
	A        string `json:"a" validate:"required"`
	B        string `json:"b" validate:"required"`
	C        string `json:"c" validate:"required"`
	D        string `json:"d"`
	E        string `json:"e"`
	F        string `json:"f"`
	G        string `json:"g"`
}

func (q questionDefinition) optionTexts() [len(optionLetters)]string {
	return [...]string{q.A, q.B, q.C, q.D, q.E, q.F, q.G}
}

var (
	validateOnce sync.Once
	validate     *govalidator.Validate
	trans        ut.Translator
)

func validatorInstance() (*govalidator.Validate, ut.Translator) {
	validateOnce.Do(func() {
		validate = govalidator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		var found bool
		trans, found = uni.GetTranslator("en")
		if !found {
			panic("validator: english translator not registered")
		}
		if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
			panic(fmt.Sprintf("validator: register translations: %v", err))
		}
	})
	return validate, trans
}

// ParseDefinition decodes a quiz document into an untyped tree for Validate.
func ParseDefinition(data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) {
			line, col := position(data, se.Offset)
			return nil, &SyntaxError{Line: line, Column: col, Err: err}
		}
		return nil, err
	}
	return raw, nil
}

func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	head := data[:offset]
	line := bytes.Count(head, []byte("\n")) + 1
	col := int(offset) - bytes.LastIndexByte(head, '\n')
	if col < 1 {
		col = 1
	}
	return line, col
}

// Validate turns an untyped definition tree into a Quiz. It reports every
// missing field and type mismatch, not only the first.
func Validate(raw any) (Quiz, error) {
	dec := &treeDecoder{}
	def := dec.definition(raw)

	v, tr := validatorInstance()
	if err := v.Struct(def); err != nil {
		var ve govalidator.ValidationErrors
		if !errors.As(err, &ve) {
			return Quiz{}, err
		}
		for _, fe := range ve {
			path := fe.Namespace()
			if i := strings.IndexByte(path, '.'); i >= 0 {
				path = path[i+1:]
			}
			if dec.covered(path) {
				continue
			}
			dec.fail(path, fe.Translate(tr))
		}
	}

	for i, q := range def.Questions {
		pos := letterIndex(q.Answer)
		// a..c are required on their own; only the optional letters need a cross-check.
		if pos < 3 {
			continue
		}
		path := fmt.Sprintf("questions[%d].answer", i)
		if q.optionTexts()[pos] == "" && !dec.covered(path) {
			dec.fail(path, fmt.Sprintf("answer %q refers to missing option %q", q.Answer, q.Answer))
		}
	}

	if len(dec.errs) > 0 {
		return Quiz{}, &ValidationError{Fields: dec.errs}
	}
	return def.quiz(), nil
}

func (d definition) quiz() Quiz {
	quiz := Quiz{
		Mode:      Mode(d.Type),
		Title:     d.Title,
		Module:    d.Module,
		Subject:   d.Subject,
		Lesson:    d.Lesson,
		Tags:      d.Tags,
		Questions: make([]Question, 0, len(d.Questions)),
	}
	if quiz.Title == "" {
		quiz.Title = defaultTitle(d)
	}
	for _, qd := range d.Questions {
		q := Question{SN: qd.SN, Source: qd.Source, Text: qd.Question}
		for i, text := range qd.optionTexts() {
			if text == "" {
				continue
			}
			q.Options = append(q.Options, Option{Letter: optionLetters[i], Text: text})
		}
		q.Correct = q.PositionOf(qd.Answer)
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz
}

func defaultTitle(d definition) string {
	if Mode(d.Type) != ModeLesson {
		if d.Module != "" {
			return d.Module
		}
		return UntitledQuiz
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Module, d.Subject, d.Lesson} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return UntitledQuiz
	}
	return strings.Join(parts, " - ")
}

func letterIndex(letter string) int {
	for i, l := range optionLetters {
		if l == letter {
			return i
		}
	}
	return -1
}

// treeDecoder copies an untyped tree into definition, recording type mismatches.
type treeDecoder struct {
	errs []FieldError
	bad  []string
}

func (d *treeDecoder) fail(path, reason string) {
	d.errs = append(d.errs, FieldError{Path: path, Reason: reason})
	d.bad = append(d.bad, path)
}

// covered reports whether path or one of its parents already has an error.
func (d *treeDecoder) covered(path string) bool {
	for _, b := range d.bad {
		if b == "" || path == b || strings.HasPrefix(path, b+".") || strings.HasPrefix(path, b+"[") {
			return true
		}
	}
	return false
}

func (d *treeDecoder) definition(raw any) definition {
	var def definition
	obj, ok := raw.(map[string]any)
	if !ok {
		d.fail("", "quiz definition must be a JSON object")
		return def
	}

	def.Type = d.str(obj, "type", "")
	if def.Type == "" {
		def.Type = string(ModeCustom)
	}
	def.Title = d.str(obj, "title", "")
	def.Module = d.str(obj, "module", "")
	def.Subject = d.str(obj, "subject", "")
	def.Lesson = d.str(obj, "lesson", "")
	def.Tags = d.tags(obj)

	switch qs := obj["questions"].(type) {
	case nil:
	case []any:
		def.Questions = make([]questionDefinition, 0, len(qs))
		for i, item := range qs {
			def.Questions = append(def.Questions, d.question(item, i))
		}
	default:
		d.fail("questions", "must be a list of questions")
	}
	return def
}

func (d *treeDecoder) question(item any, i int) questionDefinition {
	path := fmt.Sprintf("questions[%d]", i)
	var q questionDefinition
	obj, ok := item.(map[string]any)
	if !ok {
		d.fail(path, "must be an object")
		return q
	}

	q.SN = d.serial(obj, path)
	if q.SN == "" {
		if v, present := obj["sn"]; !present || v == nil {
			q.SN = strconv.Itoa(i + 1)
		}
	}
	q.Source = d.str(obj, "source", path)
	q.Question = d.str(obj, "question", path)
	q.Answer = strings.ToLower(strings.TrimSpace(d.str(obj, "answer", path)))
	q.A = d.str(obj, "a", path)
	q.B = d.str(obj, "b", path)
	q.C = d.str(obj, "c", path)
	q.D = d.str(obj, "d", path)
	q.E = d.str(obj, "e", path)
	q.F = d.str(obj, "f", path)
	q.G = d.str(obj, "g", path)
	return q
}

func (d *treeDecoder) str(obj map[string]any, key, prefix string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	d.fail(join(prefix, key), fmt.Sprintf("must be a string, got %s", kind(v)))
	return ""
}

// serial accepts numeric serials as well, since quiz exporters emit both.
func (d *treeDecoder) serial(obj map[string]any, prefix string) string {
	switch v := obj["sn"].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	default:
		d.fail(join(prefix, "sn"), fmt.Sprintf("must be a string or number, got %s", kind(v)))
		return ""
	}
}

func (d *treeDecoder) tags(obj map[string]any) []string {
	switch v := obj["tags"].(type) {
	case nil:
		return nil
	case []any:
		tags := make([]string, 0, len(v))
		for i, t := range v {
			s, ok := t.(string)
			if !ok {
				d.fail(fmt.Sprintf("tags[%d]", i), fmt.Sprintf("must be a string, got %s", kind(t)))
				continue
			}
			tags = append(tags, s)
		}
		return tags
	default:
		d.fail("tags", fmt.Sprintf("must be a list of strings, got %s", kind(v)))
		return nil
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func kind(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int, json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
