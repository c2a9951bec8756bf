package rag

import "strings"

// answerTemplate restricts the model to the retrieved context and asks it to
// admit when the context does not cover the question.
const answerTemplate = `You are an expert Adobe Experience Manager (AEM) consultant. 
Use the following context from AEM documentation to answer the question. 
If you don't know the answer based on the context, say so clearly.

Context from AEM Documentation:
{context}

Question: {question}

Provide a helpful, accurate answer based on the AEM documentation. Include relevant details and examples when appropriate.

Answer:`

// buildPrompt fills the template. The question is substituted last so that a
// literal "{context}" inside it is left alone.
func buildPrompt(context, question string) string {
	p := strings.Replace(answerTemplate, "{context}", context, 1)
	return strings.Replace(p, "{question}", question, 1)
}
