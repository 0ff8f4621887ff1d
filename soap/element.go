/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package soap implements C8 SoapDispatcher: parsing a SoapResponseBundle
// and dispatching each SOAP-ENV:Envelope/SOAP-ENV:Body/<method> triple to
// either a built-in handler or the user-registered catch-all.
// AeDRMSOAP.c navigates a hand-rolled AeXMLElement tree one accessor call
// at a time (AeDRMSOAPGetFirstMethod/GetNextMethod/GetParameterByName); the
// idiomatic replacement is a generic Element tree built by one
// encoding/xml decode, walked with plain Go slice/map access instead of a
// chain of accessor functions.
package soap

import "encoding/xml"

// Element is a generic XML node: tag name (namespace prefix stripped, the
// same normalization AeDRMSOAP.c's strcmp on literal "SOAP-ENV:Envelope"
// effectively required), attributes by name, child elements in document
// order, and concatenated character data.
type Element struct {
	Name     string
	Attrs    map[string]string
	Children []*Element
	Text     string
}

// UnmarshalXML recursively decodes e and all descendants, replacing the
// source's AeDRMSOAPFindNextMethod/FindNextParameter traversal with a
// single generic tree build.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.Name = start.Name.Local
	if len(start.Attr) > 0 {
		e.Attrs = make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			e.Attrs[a.Name.Local] = a.Value
		}
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			e.Text += string(t)
		case xml.EndElement:
			return nil
		}
	}
}

// Child returns the first direct child named name, or nil.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildText returns the text of the first direct child named name, or "".
func (e *Element) ChildText(name string) string {
	if c := e.Child(name); c != nil {
		return c.Text
	}
	return ""
}

func parseBundle(body []byte) (*Element, error) {
	root := &Element{}
	if err := xml.Unmarshal(body, root); err != nil {
		return nil, err
	}
	return root, nil
}
