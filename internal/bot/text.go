package bot

const systemPrompt = "You are a helpful AI assistant integrated with WhatsApp. " +
	"Provide clear, concise, and helpful responses. " +
	"Keep responses under 500 tokens when possible."

const paymentInstructions = "💰 To top up your account, please specify the amount in HTR.\n\n" +
	"Examples:\n" +
	"• 'Top up 1 HTR'\n" +
	"• 'Add 0.5 HTR to my account'\n" +
	"• 'Deposit 2.5 HTR'\n\n" +
	"Minimum: 0.001 HTR\n" +
	"Maximum: 1000 HTR per transaction"

const helpText = "🤖 WhatsPay - Your AI Assistant\n\n" +
	"I'm an AI assistant billed by feeless Hathor micro-payments.\n\n" +
	"💰 Account:\n" +
	"• 'balance' - check your HTR balance and usage\n" +
	"• 'top up 1 HTR' - add funds to your account\n\n" +
	"🤖 AI:\n" +
	"Just ask me anything - questions, summaries, analysis.\n\n" +
	"💡 Examples:\n" +
	"• \"What's the capital of France?\"\n" +
	"• \"Summarize this article: [paste text]\"\n" +
	"• \"Top up 0.5 HTR\"\n\n" +
	"💳 Pricing: 0.01 HTR per ~100 tokens. Most queries cost 0.01-0.05 HTR.\n\n" +
	"🔧 Keep messages under 2000 characters. Funds are credited automatically after deposit."
