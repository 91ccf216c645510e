package runner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOM is the document a gist's HTML files render into. Scripts see it as
// the global document object.
type DOM struct {
	doc *goquery.Document
}

// Script is an inline script block found in the gist's HTML
type Script struct {
	Section string // file the block came from
	Source  string
}

// NewDOM parses the HTML and CSS files into one document. HTML files are
// appended to body in gist order; CSS files become style elements in head.
func NewDOM(files Files) (*DOM, error) {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head>")
	for _, f := range files.CSS {
		sb.WriteString(`<style data-section="`)
		sb.WriteString(html.EscapeString(f.Name))
		sb.WriteString(`">`)
		sb.WriteString(f.Content)
		sb.WriteString("</style>")
	}
	sb.WriteString("</head><body>")
	for _, f := range files.HTML {
		sb.WriteString(`<template data-section="`)
		sb.WriteString(html.EscapeString(f.Name))
		sb.WriteString(`"></template>`)
		sb.WriteString(f.Content)
	}
	sb.WriteString("</body></html>")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sb.String()))
	if err != nil {
		return nil, err
	}
	return &DOM{doc: doc}, nil
}

// Scripts returns the executable inline script blocks in document order.
// External (src) scripts and non-JavaScript types are skipped.
func (d *DOM) Scripts() []Script {
	var out []Script
	section := ""
	d.doc.Find("body template[data-section], body script").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "template" {
			section, _ = s.Attr("data-section")
			return
		}
		if _, ok := s.Attr("src"); ok {
			return
		}
		if !isJSType(s.AttrOr("type", "")) {
			return
		}
		out = append(out, Script{Section: section, Source: s.Text()})
	})
	return out
}

func isJSType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}

// Body returns the rendered body markup
func (d *DOM) Body() string {
	body := d.doc.Find("body").Clone()
	body.Find("template[data-section]").Remove()
	out, _ := body.Html()
	return strings.TrimSpace(out)
}

// Bind installs document on vm
func (d *DOM) Bind(vm *goja.Runtime) error {
	document := vm.NewObject()
	root := d.doc.Selection

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"getElementById": func(call goja.FunctionCall) goja.Value {
			want := call.Argument(0).String()
			sel := root.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return s.AttrOr("id", "") == want
			})
			return d.wrap(vm, sel.First())
		},
		"querySelector": func(call goja.FunctionCall) goja.Value {
			return d.wrap(vm, d.find(vm, root, call.Argument(0).String()).First())
		},
		"querySelectorAll": func(call goja.FunctionCall) goja.Value {
			return d.wrapAll(vm, d.find(vm, root, call.Argument(0).String()))
		},
		"getElementsByClassName": func(call goja.FunctionCall) goja.Value {
			classes := strings.Fields(call.Argument(0).String())
			return d.wrapAll(vm, root.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
				if len(classes) == 0 {
					return false
				}
				for _, c := range classes {
					if !s.HasClass(c) {
						return false
					}
				}
				return true
			}))
		},
		"getElementsByTagName": func(call goja.FunctionCall) goja.Value {
			return d.wrapAll(vm, d.find(vm, root, call.Argument(0).String()))
		},
		"createElement": func(call goja.FunctionCall) goja.Value {
			tag := strings.ToLower(call.Argument(0).String())
			node := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
			return d.wrap(vm, goquery.NewDocumentFromNode(node).Selection)
		},
		"createTextNode": func(call goja.FunctionCall) goja.Value {
			node := &html.Node{Type: html.TextNode, Data: call.Argument(0).String()}
			return d.wrap(vm, goquery.NewDocumentFromNode(node).Selection)
		},
	}
	for name, fn := range methods {
		if err := document.Set(name, fn); err != nil {
			return err
		}
	}

	if err := document.DefineAccessorProperty("body", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return d.wrap(vm, root.Find("body").First())
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}
	if err := document.DefineAccessorProperty("head", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return d.wrap(vm, root.Find("head").First())
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}
	if err := document.DefineAccessorProperty("title", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(root.Find("title").First().Text())
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	return vm.Set("document", document)
}

// find runs a CSS selector. Invalid selectors throw a SyntaxError the way
// browsers do instead of silently matching nothing.
func (d *DOM) find(vm *goja.Runtime, sel *goquery.Selection, selector string) *goquery.Selection {
	m, err := cascadia.Compile(selector)
	if err != nil {
		panic(syntaxError(vm, "'"+selector+"' is not a valid selector"))
	}
	return sel.FindMatcher(m)
}

func syntaxError(vm *goja.Runtime, msg string) goja.Value {
	ctor, ok := goja.AssertConstructor(vm.Get("SyntaxError"))
	if !ok {
		return vm.NewTypeError(msg)
	}
	obj, err := ctor(nil, vm.ToValue(msg))
	if err != nil {
		return vm.NewTypeError(msg)
	}
	return obj
}

func (d *DOM) wrapAll(vm *goja.Runtime, sel *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		items = append(items, d.wrap(vm, s))
	})
	return vm.NewArray(items...)
}

// wrap builds an element proxy for the first node in sel, or null
func (d *DOM) wrap(vm *goja.Runtime, sel *goquery.Selection) goja.Value {
	if sel == nil || sel.Length() == 0 {
		return goja.Null()
	}
	sel = sel.First()
	node := sel.Get(0)
	el := vm.NewObject()

	accessor := func(name string, get func() goja.Value, set func(goja.Value)) {
		var setter goja.Value
		if set != nil {
			setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
				set(call.Argument(0))
				return goja.Undefined()
			})
		}
		// Not enumerable: JSON.stringify would otherwise walk parent links
		_ = el.DefineAccessorProperty(name, vm.ToValue(func(goja.FunctionCall) goja.Value {
			return get()
		}), setter, goja.FLAG_FALSE, goja.FLAG_FALSE)
	}

	accessor("tagName", func() goja.Value {
		if node.Type != html.ElementNode {
			return vm.ToValue("#text")
		}
		return vm.ToValue(strings.ToUpper(node.Data))
	}, nil)
	accessor("id", func() goja.Value {
		return vm.ToValue(sel.AttrOr("id", ""))
	}, func(v goja.Value) { sel.SetAttr("id", v.String()) })
	accessor("className", func() goja.Value {
		return vm.ToValue(sel.AttrOr("class", ""))
	}, func(v goja.Value) { sel.SetAttr("class", v.String()) })
	accessor("textContent", func() goja.Value {
		return vm.ToValue(sel.Text())
	}, func(v goja.Value) { sel.SetText(v.String()) })
	accessor("innerText", func() goja.Value {
		return vm.ToValue(sel.Text())
	}, func(v goja.Value) { sel.SetText(v.String()) })
	accessor("innerHTML", func() goja.Value {
		out, _ := sel.Html()
		return vm.ToValue(out)
	}, func(v goja.Value) { sel.SetHtml(v.String()) })
	accessor("parentElement", func() goja.Value {
		return d.wrap(vm, sel.Parent())
	}, nil)
	accessor("children", func() goja.Value {
		return d.wrapAll(vm, sel.Children())
	}, nil)

	_ = el.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := sel.Attr(call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	_ = el.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		sel.SetAttr(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = el.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		sel.RemoveAttr(call.Argument(0).String())
		return goja.Undefined()
	})
	_ = el.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return d.wrap(vm, d.find(vm, sel, call.Argument(0).String()).First())
	})
	_ = el.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return d.wrapAll(vm, d.find(vm, sel, call.Argument(0).String()))
	})
	_ = el.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		child := d.unwrap(call.Argument(0))
		if child == nil {
			panic(vm.NewTypeError("appendChild: argument is not a node"))
		}
		sel.AppendSelection(child)
		return call.Argument(0)
	})
	_ = el.Set("remove", func(goja.FunctionCall) goja.Value {
		sel.Remove()
		return goja.Undefined()
	})
	_ = el.DefineDataProperty(selectionKey, vm.ToValue(sel), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)

	return el
}

func (d *DOM) unwrap(v goja.Value) *goquery.Selection {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	v = obj.Get(selectionKey)
	if v == nil {
		return nil
	}
	sel, _ := v.Export().(*goquery.Selection)
	return sel
}

const selectionKey = "__jsgistNode"
