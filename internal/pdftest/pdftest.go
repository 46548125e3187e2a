// Package pdftest builds small single-page PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Build returns a valid PDF whose only page shows lines of Helvetica text,
// one per line.
func Build(lines ...string) []byte {
	var content bytes.Buffer
	content.WriteString("BT\n/F1 12 Tf\n14 TL\n72 720 Td\n")
	for i, line := range lines {
		if i > 0 {
			content.WriteString("T*\n")
		}
		fmt.Fprintf(&content, "(%s) Tj\n", escape(line))
	}
	content.WriteString("ET")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objects)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return out.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// LambdaWhitepaper is AWS text with plenty of service names.
var LambdaWhitepaper = []string{
	"AWS Lambda Whitepaper",
	"AWS Lambda is a serverless compute service that runs your code in response to events.",
	"Lambda automatically manages the underlying compute resources, unlike Amazon EC2 instances.",
	"You can trigger Lambda functions from Amazon S3 uploads, DynamoDB streams and API Gateway requests.",
	"Lambda integrates with IAM for permissions and CloudWatch for logs and metrics.",
	"With serverless architectures you pay only for the compute time you consume on AWS.",
}

// FrenchCooking has no AWS vocabulary at all.
var FrenchCooking = []string{
	"French Cooking Recipes",
	"Coq au vin is a classic dish of chicken braised slowly with red wine, mushrooms and onions.",
	"For a good ratatouille, cook the aubergine, courgette and peppers separately before combining them.",
	"Creme brulee needs fresh cream, egg yolks, sugar and a vanilla pod, baked gently in a water bath.",
	"Serve the tarte tatin warm with a spoonful of creme fraiche.",
}
